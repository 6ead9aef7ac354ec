package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/pagechat/internal/app"
	"github.com/ent0n29/pagechat/internal/conversation"
	"github.com/ent0n29/pagechat/internal/render"
	"github.com/ent0n29/pagechat/internal/transcript"
)

const renderWidth = 80

var (
	modelName    string
	outputFormat string
	showAll      bool
	speechOut    string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <url>",
	Short: "Summarize a page, replacing its saved transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		conv, err := openConversation(cmd, res, args[0])
		if err != nil {
			return err
		}
		defer conv.Close()

		t, err := conv.Summarize(cmd.Context())
		if err != nil {
			return err
		}
		return printTurns(cmd.OutOrStdout(), t, 0)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <url> <question>",
	Short: "Ask a question about a page, continuing its saved transcript",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		conv, err := openConversation(cmd, res, args[0])
		if err != nil {
			return err
		}
		defer conv.Close()

		t, err := conv.Ask(cmd.Context(), strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		from := len(t) - 1
		if showAll {
			from = 0
		}
		return printTurns(cmd.OutOrStdout(), t, from)
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <url> <index>",
	Short: "Regenerate the assistant turn at index, dropping everything after it",
	Long: `Regenerate the assistant turn at index. Index 0 is the page summary;
use "pagechat history show <url>" to see the indices.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q: %w", args[1], err)
		}
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		conv, err := openConversation(cmd, res, args[0])
		if err != nil {
			return err
		}
		defer conv.Close()

		t, err := conv.Regenerate(cmd.Context(), index)
		if err != nil {
			return err
		}
		return printTurns(cmd.OutOrStdout(), t, index)
	},
}

var speakCmd = &cobra.Command{
	Use:   "speak <url> [index]",
	Short: "Save speech audio for an assistant turn",
	Long: `Synthesize speech for the assistant turn at index, or the latest one,
and save it as an audio file. The page is summarized first when it has no
saved transcript.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		index := -1
		if len(args) == 2 {
			if index, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid index %q: %w", args[1], err)
			}
		}
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		conv, err := openConversation(cmd, res, args[0])
		if err != nil {
			return err
		}
		defer conv.Close()

		ctx := cmd.Context()
		if _, err := conv.FetchContent(ctx); err != nil {
			return err
		}
		t := conv.Snapshot().Transcript
		if len(t) == 0 {
			if t, err = conv.Summarize(ctx); err != nil {
				return err
			}
		}
		if index < 0 {
			index = t.LastAssistant()
		}

		speech, err := conv.Speak(ctx, index)
		if err != nil {
			return err
		}
		path := speechOut
		if path == "" {
			path = speech.Filename
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
		if err := os.WriteFile(path, speech.Audio, 0o644); err != nil {
			return fmt.Errorf("write speech: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
			selectedStyle.Render("Saved"), path, metaStyle.Render(fmt.Sprintf("(%d bytes, turn %d)", len(speech.Audio), index)))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{summarizeCmd, askCmd, regenerateCmd, speakCmd} {
		c.Flags().StringVarP(&modelName, "model", "m", "", "Select this model for generation (saved as the default)")
	}
	for _, c := range []*cobra.Command{summarizeCmd, askCmd, regenerateCmd} {
		c.Flags().StringVarP(&outputFormat, "format", "f", "terminal", "Output format: terminal, text or json")
	}
	askCmd.Flags().BoolVar(&showAll, "all", false, "Print the whole transcript instead of the answer")
	speakCmd.Flags().StringVarP(&speechOut, "out", "o", "", "Output file (default speech.mp3)")

	rootCmd.AddCommand(summarizeCmd, askCmd, regenerateCmd, speakCmd)
}

// openConversation builds the conversation for rawURL and reports its
// progress on stderr.
func openConversation(cmd *cobra.Command, res *app.BuildResult, rawURL string) (*conversation.Session, error) {
	conv, err := res.NewConversation("", rawURL)
	if err != nil {
		return nil, err
	}
	if modelName != "" {
		if _, err := conv.SelectModel(cmd.Context(), modelName); err != nil {
			_ = conv.Close()
			return nil, err
		}
	}

	stderr := cmd.ErrOrStderr()
	last := ""
	conv.Subscribe(func(snap conversation.Snapshot) {
		if snap.Status != "" && snap.Status != last {
			fmt.Fprintln(stderr, dimStyle.Render(snap.Status))
		}
		last = snap.Status
	})
	return conv, nil
}

// printTurns writes t[from:] in the selected output format.
func printTurns(w io.Writer, t transcript.Transcript, from int) error {
	from = min(max(from, 0), len(t))
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t[from:])
	case "text":
		_, err := fmt.Fprintln(w, t[from:].Render())
		return err
	case "", "terminal":
		r, err := render.NewTerminalRenderer(renderWidth, "")
		if err != nil {
			return err
		}
		for i := from; i < len(t); i++ {
			s, err := r.Turn(t, i)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, s)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected terminal, text or json)", outputFormat)
	}
}

package main

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ent0n29/pagechat/internal/render"
	"github.com/ent0n29/pagechat/internal/tui"
)

var speechDir string

var chatCmd = &cobra.Command{
	Use:   "chat <url>",
	Short: "Chat with a page in an interactive terminal UI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if !verbose {
			// Log lines would tear the alternate screen.
			logOutput = io.Discard
		}
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		conv, err := res.NewConversation("", args[0])
		if err != nil {
			return err
		}
		defer conv.Close()

		renderer, err := render.NewTerminalRenderer(renderWidth, "")
		if err != nil {
			return err
		}
		m, unsubscribe := tui.New(conv, tui.Options{
			URL:       args[0],
			Renderer:  renderer,
			SpeechDir: speechDir,
		})
		defer unsubscribe()

		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run chat: %w", err)
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVar(&speechDir, "speech-dir", os.TempDir(), "Directory spoken turns are saved to")
	rootCmd.AddCommand(chatCmd)
}

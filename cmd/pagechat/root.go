package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ent0n29/pagechat/internal/app"
	"github.com/ent0n29/pagechat/internal/config"
	"github.com/ent0n29/pagechat/internal/reliability"
)

var (
	verbose bool
	version = "dev"

	// logOutput receives structured logs.
	logOutput io.Writer = os.Stderr
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagechat",
	Short: "Summarize and chat with web pages using a local language model",
	Long: `Summarize a web page or PDF, ask follow-up questions about it and
listen to the answers, backed by an Ollama or OpenAI-compatible endpoint
and a Kokoro speech server.

Transcripts are saved per page and restored the next time the page is opened.

Quick Start:
  pagechat summarize https://go.dev/blog/    # Summarize a page
  pagechat ask https://go.dev/blog/ "Why?"   # Ask about it
  pagechat chat https://go.dev/blog/         # Interactive chat
  pagechat serve                             # HTTP API for the browser extension`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is fine.
		_ = godotenv.Load()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	c := reliability.Classify(err)
	if c.Abort {
		fmt.Fprintln(os.Stderr, dimStyle.Render("Stopped."))
		os.Exit(130)
	}
	if c.Code == "internal" {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
	} else {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), c.Message)
	}
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// setup loads configuration and builds the component graph for a command.
func setup(cmd *cobra.Command) (*app.BuildResult, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	res, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func newLogger(level slog.Level) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: level}))
}

// cleanup releases res, joining its error into errp.
func cleanup(res *app.BuildResult, errp *error) {
	if err := res.Cleanup(); err != nil {
		*errp = errors.Join(*errp, err)
	}
}

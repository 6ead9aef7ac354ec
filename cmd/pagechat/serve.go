package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API used by the browser extension popup",
	Long: `Start the HTTP and websocket API. Each popup activation creates a
session bound to the active tab's URL; sessions expire after a period of
inactivity.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		cfg := res.Config
		if serveAddr != "" {
			cfg.BindAddr = serveAddr
		}
		logger := res.Logger

		httpServer := &http.Server{
			Addr:              cfg.BindAddr,
			Handler:           res.API.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx := cmd.Context()
		runCtx, runCancel := context.WithCancel(ctx)
		defer runCancel()
		res.Sessions.StartJanitor(runCtx, 5*time.Second)

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", cfg.BindAddr, "llm_api", cfg.LLMAPI, "history_backend", cfg.HistoryBackend)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			if err != nil {
				return err
			}
			return nil
		case <-ctx.Done():
		}
		logger.Info("shutdown signal received")

		runCancel()
		res.Sessions.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", "error", err)
			_ = httpServer.Close()
		}
		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides APP_BIND_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

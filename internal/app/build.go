package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/pagechat/internal/config"
	"github.com/ent0n29/pagechat/internal/content"
	"github.com/ent0n29/pagechat/internal/conversation"
	"github.com/ent0n29/pagechat/internal/history"
	"github.com/ent0n29/pagechat/internal/httpapi"
	"github.com/ent0n29/pagechat/internal/inference"
	"github.com/ent0n29/pagechat/internal/observability"
	"github.com/ent0n29/pagechat/internal/session"
	"github.com/ent0n29/pagechat/internal/settings"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Metrics  *observability.Metrics
	History  history.Store
	Settings settings.Store
	Client   inference.Client
	Speech   inference.SpeechSynthesizer
	Fetcher  *content.Fetcher
	Logger   *slog.Logger

	// Cleanup should be called on shutdown to release external resources (DB handles, sessions).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := history.NewStore(ctx, history.Config{
		Backend:     cfg.HistoryBackend,
		Path:        cfg.HistoryPath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}

	client, err := inference.NewClient(inference.Config{
		API:     cfg.LLMAPI,
		APIKey:  cfg.LLMAPIKey,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("inference client init failed: %w", err)
	}

	prefs := settings.NewFileStore(cfg.SettingsPath, settings.Settings{
		LLMEndpoint:    cfg.LLMEndpoint,
		SpeechEndpoint: cfg.SpeechEndpoint,
	})
	speech := inference.NewSpeechClient(cfg.SpeechTimeout)
	fetcher := content.NewFetcher(content.FetcherConfig{
		Timeout:  cfg.ContentFetchTimeout,
		MaxBytes: int64(cfg.ContentMaxBytes),
		PDF:      content.NewPlainTextPDF(),
		Logger:   logger.With("component", "content"),
	})

	res := &BuildResult{
		Config:   cfg,
		Metrics:  metrics,
		History:  store,
		Settings: prefs,
		Client:   client,
		Speech:   speech,
		Fetcher:  fetcher,
		Logger:   logger,
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout, res.NewConversation)
	sessions.SetExpireHook(func(s *session.Session) {
		logger.Info("session expired", "session_id", s.ID, "url", s.URL)
		metrics.ObserveSessionEvent("expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
	})
	res.Sessions = sessions

	res.API = httpapi.New(cfg, httpapi.Deps{
		Sessions: sessions,
		Settings: prefs,
		Models:   client,
		Speech:   speech,
		Metrics:  metrics,
		Logger:   logger.With("component", "httpapi"),
	})

	res.Cleanup = func() error {
		sessions.CloseAll()
		var errs []string
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}
	return res, nil
}

// NewConversation builds the conversation for the page at rawURL. The URL is
// validated up front so unsupported pages fail before a session exists.
func (r *BuildResult) NewConversation(id, rawURL string) (*conversation.Session, error) {
	if _, _, err := content.NormalizeURL(rawURL); err != nil {
		return nil, err
	}
	logger := r.Logger.With("component", "conversation")
	return conversation.New(conversation.Config{
		ID:        id,
		Source:    r.Fetcher.Source(rawURL),
		History:   r.History,
		Generator: r.Client,
		Speech:    r.Speech,
		Settings:  r.Settings,
		Voice:     r.Config.SpeechVoice,
		Speed:     r.Config.SpeechSpeed,
		Metrics:   r.Metrics,
		Logger:    logger,
	})
}

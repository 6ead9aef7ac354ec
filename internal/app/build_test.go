package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/pagechat/internal/config"
	"github.com/ent0n29/pagechat/internal/content"
	"github.com/ent0n29/pagechat/internal/conversation"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		BindAddr:                 "127.0.0.1:0",
		SessionInactivityTimeout: time.Minute,
		MetricsNamespace:         "test_app",
		LLMAPI:                   "ollama",
		LLMEndpoint:              "http://127.0.0.1:1",
		LLMTimeout:               time.Second,
		SpeechEndpoint:           "http://127.0.0.1:1",
		SpeechVoice:              "af_sky",
		SpeechSpeed:              1,
		HistoryBackend:           "memory",
		SettingsPath:             filepath.Join(dir, "settings.yaml"),
		ContentFetchTimeout:      time.Second,
		ContentMaxBytes:          1 << 20,
	}
}

func TestBuildWiresSessions(t *testing.T) {
	res, err := Build(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { _ = res.Cleanup() })

	if res.API == nil || res.Sessions == nil || res.History == nil {
		t.Fatal("Build() left components unset")
	}

	sess, err := res.Sessions.Create("https://Example.com/a#frag")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := sess.Conversation().Snapshot().State; got != conversation.StateIdle {
		t.Fatalf("state = %q, want idle", got)
	}
	if got := res.Sessions.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", got)
	}

	if err := res.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if got := res.Sessions.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount() after cleanup = %d, want 0", got)
	}
}

func TestNewConversationRejectsUnsupportedPages(t *testing.T) {
	res, err := Build(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { _ = res.Cleanup() })

	for _, raw := range []string{"", "chrome://settings", "ftp://example.com/x"} {
		if _, err := res.Sessions.Create(raw); !errors.Is(err, content.ErrInvalidPage) {
			t.Errorf("Create(%q) error = %v, want ErrInvalidPage", raw, err)
		}
	}
}

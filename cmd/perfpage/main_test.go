package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/pagechat/internal/app"
	"github.com/ent0n29/pagechat/internal/config"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{5, 1, 4, 2, 3}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{p: 0.5, want: 3},
		{p: 0.95, want: 5},
		{p: 1, want: 5},
		{p: 0, want: 1},
	}
	for _, tt := range tests {
		if got := percentile(samples, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("percentile(nil) = %v, want 0", got)
	}
}

func TestWSURLForSession(t *testing.T) {
	got, err := wsURLForSession("https://host:8787/base/", "abc")
	if err != nil {
		t.Fatalf("wsURLForSession() error = %v", err)
	}
	if want := "wss://host:8787/base/v1/sessions/abc/events"; got != want {
		t.Fatalf("wsURLForSession() = %q, want %q", got, want)
	}
	if _, err := wsURLForSession("ftp://host", "abc"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestOptionsNormalize(t *testing.T) {
	o := options{baseURL: " http://x/ ", pageURL: "https://example.com", turns: 1, texts: []string{"q"}, turnTimeout: time.Millisecond, cancelEvery: -1}
	if err := o.normalize(); err != nil {
		t.Fatalf("normalize() error = %v", err)
	}
	if o.baseURL != "http://x" || o.turnTimeout != time.Second || o.cancelEvery != 0 {
		t.Fatalf("normalize() = %+v", o)
	}
	if err := (&options{baseURL: "http://x", turns: 1, texts: []string{"q"}}).normalize(); err == nil {
		t.Fatal("expected error when page is missing")
	}
}

// newStack serves a page and an Ollama-style generate API, and runs the
// pagechat HTTP API against them.
func newStack(t *testing.T, generateDelay time.Duration) (apiURL, pageURL string) {
	t.Helper()
	var generated atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><body><article><p>Latency budgets matter.</p></article></body></html>`)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(generateDelay):
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"model":"llama3.2","response":"answer %d","done":true}`, generated.Add(1))
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	cfg := config.Config{
		BindAddr:                 "127.0.0.1:0",
		SessionInactivityTimeout: time.Minute,
		MetricsNamespace:         "test_perfpage",
		MetricsEnabled:           true,
		LLMAPI:                   "ollama",
		LLMEndpoint:              backend.URL,
		LLMTimeout:               10 * time.Second,
		SpeechEndpoint:           backend.URL,
		SpeechSpeed:              1,
		HistoryBackend:           "memory",
		SettingsPath:             filepath.Join(t.TempDir(), "settings.yaml"),
		ContentFetchTimeout:      5 * time.Second,
		ContentMaxBytes:          1 << 20,
	}
	res, err := app.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("app.Build() error = %v", err)
	}
	api := httptest.NewServer(res.API.Router())
	t.Cleanup(func() {
		api.Close()
		_ = res.Cleanup()
	})
	return api.URL, backend.URL + "/page"
}

func TestRunReplaysTurns(t *testing.T) {
	apiURL, pageURL := newStack(t, 0)

	var out bytes.Buffer
	err := run(context.Background(), &out, options{
		baseURL:     apiURL,
		pageURL:     pageURL,
		turns:       3,
		turnTimeout: 10 * time.Second,
		texts:       []string{"Why?"},
		reset:       true,
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	report := out.String()
	for _, want := range []string{"summarize", "ask", "server:", "p95"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestRunCancelsOverWebsocket(t *testing.T) {
	apiURL, pageURL := newStack(t, 2*time.Second)

	var out bytes.Buffer
	err := run(context.Background(), &out, options{
		baseURL:     apiURL,
		pageURL:     pageURL,
		turns:       2,
		turnTimeout: 20 * time.Second,
		cancelEvery: 1,
		cancelAfter: 300 * time.Millisecond,
		texts:       []string{"Why?"},
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if report := out.String(); !strings.Contains(report, "cancel") {
		t.Fatalf("report missing cancel row:\n%s", report)
	}
}

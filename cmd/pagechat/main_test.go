package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ent0n29/pagechat/internal/content"
)

type stubBackend struct {
	*httptest.Server
	generated atomic.Int32
}

// newStubBackend serves a page, an Ollama generate API and a speech API.
func newStubBackend(t *testing.T) *stubBackend {
	t.Helper()
	b := &stubBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><body><article><p>Go is a fun language.</p></article></body></html>`)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, _ *http.Request) {
		n := b.generated.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"model":"llama3.2","response":"answer %d","done":true}`, n)
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"models":[{"name":"llama3.2","model":"llama3.2"},{"name":"qwen2.5","model":"qwen2.5"}]}`)
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3audio")
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func setTestEnv(t *testing.T, endpoint string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SETTINGS_PATH", filepath.Join(dir, "settings.yaml"))
	t.Setenv("HISTORY_BACKEND", "bolt")
	t.Setenv("HISTORY_PATH", filepath.Join(dir, "history.db"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LLM_API", "ollama")
	t.Setenv("LLM_ENDPOINT", endpoint)
	t.Setenv("SPEECH_ENDPOINT", endpoint)
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	outputFormat, modelName, showAll, speechOut = "terminal", "", false, ""
	verbose = false
	logOutput = io.Discard

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "help flag", args: []string{"--help"}},
		{name: "version flag", args: []string{"--version"}},
		{name: "unknown command", args: []string{"nope"}, wantErr: true},
		{name: "summarize without url", args: []string{"summarize"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConversationCommands(t *testing.T) {
	backend := newStubBackend(t)
	setTestEnv(t, backend.URL)
	pageURL := backend.URL + "/page"

	out, err := runCLI(t, "summarize", pageURL, "--format", "text")
	if err != nil {
		t.Fatalf("summarize error = %v", err)
	}
	if strings.TrimSpace(out) != "Assistant: answer 1" {
		t.Fatalf("summarize output = %q", out)
	}

	out, err = runCLI(t, "ask", pageURL, "Why", "is", "it", "fun?", "--format", "text")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if strings.TrimSpace(out) != "Assistant: answer 2" {
		t.Fatalf("ask output = %q", out)
	}

	out, err = runCLI(t, "regenerate", pageURL, "2", "--format", "text")
	if err != nil {
		t.Fatalf("regenerate error = %v", err)
	}
	if strings.TrimSpace(out) != "Assistant: answer 3" {
		t.Fatalf("regenerate output = %q", out)
	}

	out, err = runCLI(t, "history", "show", pageURL, "--format", "text")
	if err != nil {
		t.Fatalf("history show error = %v", err)
	}
	for _, want := range []string{"3 turns", "Assistant: answer 1", "User: Why is it fun?", "Assistant: answer 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "answer 2") {
		t.Errorf("regenerated turn still in history:\n%s", out)
	}

	if _, err := runCLI(t, "history", "clear", pageURL); err != nil {
		t.Fatalf("history clear error = %v", err)
	}
	out, err = runCLI(t, "history", "show", pageURL)
	if err != nil {
		t.Fatalf("history show error = %v", err)
	}
	if !strings.Contains(out, "No saved transcript") {
		t.Fatalf("history after clear = %q", out)
	}
}

func TestAskJSONIncludesWholeTranscript(t *testing.T) {
	backend := newStubBackend(t)
	setTestEnv(t, backend.URL)

	out, err := runCLI(t, "ask", backend.URL+"/page", "What?", "--all", "--format", "json")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if !strings.Contains(out, `"What?"`) || !strings.Contains(out, `"answer 1"`) {
		t.Fatalf("json output = %s", out)
	}
}

func TestSpeakWritesAudio(t *testing.T) {
	backend := newStubBackend(t)
	dir := setTestEnv(t, backend.URL)
	target := filepath.Join(dir, "out", "summary.mp3")

	out, err := runCLI(t, "speak", backend.URL+"/page", "--out", target)
	if err != nil {
		t.Fatalf("speak error = %v", err)
	}
	if !strings.Contains(out, target) {
		t.Errorf("speak output = %q", out)
	}
	audio, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if string(audio) != "ID3audio" {
		t.Fatalf("audio = %q", audio)
	}
	if got := backend.generated.Load(); got != 1 {
		t.Fatalf("generate calls = %d, want 1 (summary before speaking)", got)
	}
}

func TestModelCommands(t *testing.T) {
	backend := newStubBackend(t)
	dir := setTestEnv(t, backend.URL)

	if _, err := runCLI(t, "model", "set", "qwen2.5"); err != nil {
		t.Fatalf("model set error = %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "settings.yaml"))
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if !strings.Contains(string(raw), "model: qwen2.5") {
		t.Fatalf("settings file = %s", raw)
	}

	out, err := runCLI(t, "models")
	if err != nil {
		t.Fatalf("models error = %v", err)
	}
	if !strings.Contains(out, "* qwen2.5") || !strings.Contains(out, "llama3.2") {
		t.Fatalf("models output = %q", out)
	}
}

func TestCommandErrors(t *testing.T) {
	setTestEnv(t, "http://127.0.0.1:1")

	_, err := runCLI(t, "history", "show", "ftp://example.com/file")
	if !errors.Is(err, content.ErrInvalidPage) {
		t.Fatalf("history show error = %v, want ErrInvalidPage", err)
	}

	_, err = runCLI(t, "regenerate", "https://example.com/", "two")
	if err == nil || !strings.Contains(err.Error(), "invalid index") {
		t.Fatalf("regenerate error = %v, want invalid index", err)
	}

	_, err = runCLI(t, "summarize", "about:blank")
	if !errors.Is(err, content.ErrInvalidPage) {
		t.Fatalf("summarize error = %v, want ErrInvalidPage", err)
	}
}

func TestSettingsCommands(t *testing.T) {
	setTestEnv(t, "http://127.0.0.1:1")

	if _, err := runCLI(t, "settings", "set"); err == nil {
		t.Fatal("settings set without flags should fail")
	}
	if _, err := runCLI(t, "settings", "set", "--speech-endpoint", "http://localhost:9999"); err != nil {
		t.Fatalf("settings set error = %v", err)
	}
	out, err := runCLI(t, "settings", "show")
	if err != nil {
		t.Fatalf("settings show error = %v", err)
	}
	if !strings.Contains(out, "http://localhost:9999") || !strings.Contains(out, "http://127.0.0.1:1") {
		t.Fatalf("settings show = %q", out)
	}
	if _, err := runCLI(t, "settings", "set", "--llm-endpoint", "ftp://example.com"); err == nil {
		t.Fatal("non-http endpoint should be rejected")
	}
}

package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "<think>reasoning here</think>Final answer.", want: "Final answer."},
		{in: "<think>line one\nline two\n</think>\n\n  Answer  ", want: "Answer"},
		{in: "<think>a</think>One <think>b</think>Two", want: "One Two"},
		{in: "No reasoning.", want: "No reasoning."},
		{in: "<think>x</think> Key point.", want: "Key point."},
	}
	for _, tc := range tests {
		if got := CleanResponse(tc.in); got != tc.want {
			t.Fatalf("CleanResponse(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `attachment; filename="speech.mp3"`, want: "speech.mp3"},
		{in: `attachment; filename='voice.wav'`, want: "voice.wav"},
		{in: `attachment; filename=out.opus; size=3`, want: "out.opus"},
		{in: `attachment; filename="../../etc/passwd"`, want: "passwd"},
		{in: `attachment`, want: DefaultSpeechFilename},
		{in: ``, want: DefaultSpeechFilename},
		{in: `inline; filename=""`, want: DefaultSpeechFilename},
	}
	for _, tc := range tests {
		if got := ParseFilename(tc.in); got != tc.want {
			t.Fatalf("ParseFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSpeechTextStripsMarkup(t *testing.T) {
	in := "## Takeaways\n- **Fast** startup\n- See [docs](https://example.com) 🚀"
	got := SpeechText(in)
	if strings.ContainsAny(got, "#*[]🚀") || strings.Contains(got, "https://") {
		t.Fatalf("SpeechText() = %q, still contains markup", got)
	}
	if !strings.Contains(got, "Takeaways.") || !strings.Contains(got, "Fast startup.") || !strings.Contains(got, "See docs") {
		t.Fatalf("SpeechText() = %q, want readable sentences", got)
	}
}

func TestOllamaGenerate(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"llama3","response":"<think>x</think> Key point.","done":true}`))
	}))
	defer ts.Close()

	c := NewOllamaClient(time.Second)
	gen, err := c.Generate(context.Background(), GenerateRequest{
		Endpoint:      ts.URL + "/",
		Model:         "llama3",
		System:        "sys",
		Prompt:        "Hello world",
		Temperature:   0.2,
		ContextWindow: 16384,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != "Key point." || gen.Model != "llama3" {
		t.Fatalf("gen = %+v", gen)
	}
	if gen.Elapsed < 0 {
		t.Fatalf("Elapsed = %v, want >= 0", gen.Elapsed)
	}

	if got["model"] != "llama3" || got["system"] != "sys" || got["prompt"] != "Hello world" || got["stream"] != false {
		t.Fatalf("request body = %+v", got)
	}
	opts, _ := got["options"].(map[string]any)
	if opts["temperature"] != 0.2 || opts["num_ctx"] != float64(16384) {
		t.Fatalf("options = %+v", opts)
	}
}

func TestOllamaGenerateHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer ts.Close()

	_, err := NewOllamaClient(time.Second).Generate(context.Background(), GenerateRequest{Endpoint: ts.URL, Model: "nope"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Generate() error = %v, want HTTPError", err)
	}
	if httpErr.Status != http.StatusNotFound || !strings.Contains(httpErr.Detail, "not found") {
		t.Fatalf("httpErr = %+v", httpErr)
	}
}

func TestOllamaGenerateErrorInBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"llama runner process has terminated"}`))
	}))
	defer ts.Close()

	_, err := NewOllamaClient(time.Second).Generate(context.Background(), GenerateRequest{Endpoint: ts.URL, Model: "llama3"})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Generate() error = %v, want ProviderError", err)
	}
	if provErr.Provider != "ollama" || !strings.Contains(provErr.Detail, "terminated") {
		t.Fatalf("provErr = %+v", provErr)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		t.Fatalf("Generate() error = %v, want no HTTPError for a 200 response", err)
	}
}

func TestOllamaGenerateAbort(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := NewOllamaClient(5*time.Second).Generate(ctx, GenerateRequest{Endpoint: ts.URL, Model: "m"})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Generate() error = %v, want ErrAborted", err)
	}
}

func TestOllamaGenerateNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewOllamaClient(time.Second).Generate(context.Background(), GenerateRequest{Endpoint: url, Model: "m"})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Generate() error = %v, want NetworkError", err)
	}
}

func TestOllamaListModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[{"model":"llama3:8b","name":"llama3:8b"},{"name":"qwen3"}]}`))
	}))
	defer ts.Close()

	models, err := NewOllamaClient(time.Second).ListModels(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0].ID != "llama3:8b" || models[1].ID != "qwen3" {
		t.Fatalf("models = %+v", models)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("messages = %+v", body["messages"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"qwen3","choices":[{"index":0,"message":{"role":"assistant","content":"<think>hmm</think>\nAnswer."},"finish_reason":"stop"}]}`))
	}))
	defer ts.Close()

	gen, err := NewOpenAIClient("", time.Second).Generate(context.Background(), GenerateRequest{
		Endpoint: ts.URL, Model: "qwen3", System: "s", Prompt: "p", Temperature: 0.1,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != "Answer." || gen.Model != "qwen3" {
		t.Fatalf("gen = %+v", gen)
	}
}

func TestOpenAIGenerateHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer ts.Close()

	_, err := NewOpenAIClient("", time.Second).Generate(context.Background(), GenerateRequest{Endpoint: ts.URL + "/v1", Model: "m"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("Generate() error = %v, want HTTPError 503", err)
	}
}

func TestNewClientModes(t *testing.T) {
	if c, err := NewClient(Config{}); err != nil {
		t.Fatalf("NewClient(default) error = %v", err)
	} else if _, ok := c.(*OllamaClient); !ok {
		t.Fatalf("default client = %T, want *OllamaClient", c)
	}
	if c, err := NewClient(Config{API: "OpenAI"}); err != nil {
		t.Fatalf("NewClient(openai) error = %v", err)
	} else if _, ok := c.(*OpenAIClient); !ok {
		t.Fatalf("openai client = %T, want *OpenAIClient", c)
	}
	if _, err := NewClient(Config{API: "grpc"}); err == nil {
		t.Fatalf("NewClient(grpc) expected error")
	}
}

func TestSpeechClient(t *testing.T) {
	var got speechPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Disposition", `attachment; filename="summary.mp3"`)
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer ts.Close()

	sp, err := NewSpeechClient(time.Second).SynthesizeSpeech(context.Background(), SpeechRequest{
		Endpoint: ts.URL,
		Input:    "**Hello** there",
	})
	if err != nil {
		t.Fatalf("SynthesizeSpeech() error = %v", err)
	}
	if string(sp.Audio) != "ID3audio" || sp.Filename != "summary.mp3" || sp.ContentType != "audio/mpeg" {
		t.Fatalf("speech = %+v", sp)
	}
	if got.Model != "kokoro" || got.Voice != DefaultSpeechVoice || got.Speed != 1.0 || got.Input != "Hello there" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestSpeechClientHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "voice not found", http.StatusBadRequest)
	}))
	defer ts.Close()

	_, err := NewSpeechClient(time.Second).SynthesizeSpeech(context.Background(), SpeechRequest{Endpoint: ts.URL, Input: "hi"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusBadRequest {
		t.Fatalf("SynthesizeSpeech() error = %v, want HTTPError 400", err)
	}
}

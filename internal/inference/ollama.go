package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
}

// OllamaClient talks to the Ollama /api/generate and /api/tags endpoints.
type OllamaClient struct {
	client *http.Client
	now    func() time.Time
}

func NewOllamaClient(timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaClient{
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	payload, err := json.Marshal(ollamaGenerateRequest{
		Model:  req.Model,
		System: req.System,
		Prompt: req.Prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumCtx:      req.ContextWindow,
		},
	})
	if err != nil {
		return Generation{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinEndpoint(req.Endpoint, "/api/generate"), bytes.NewReader(payload))
	if err != nil {
		return Generation{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := c.now()
	res, err := c.client.Do(httpReq)
	if err != nil {
		return Generation{}, transportError(ctx, "send generate request", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Generation{}, httpErrorFrom(res)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Generation{}, transportError(ctx, "read generate response", err)
	}
	elapsed := c.now().Sub(start)

	if !gjson.ValidBytes(body) {
		return Generation{}, &NetworkError{Op: "decode generate response", Err: errors.New("invalid json")}
	}
	parsed := gjson.ParseBytes(body)
	if msg := parsed.Get("error"); msg.Exists() {
		return Generation{}, &ProviderError{Provider: "ollama", Detail: msg.String()}
	}
	model := parsed.Get("model").String()
	if model == "" {
		model = req.Model
	}
	return Generation{
		Text:    CleanResponse(parsed.Get("response").String()),
		Model:   model,
		Elapsed: elapsed,
	}, nil
}

func (c *OllamaClient) ListModels(ctx context.Context, endpoint string) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, joinEndpoint(endpoint, "/api/tags"), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, "list models", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, httpErrorFrom(res)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, transportError(ctx, "read models response", err)
	}

	var models []ModelInfo
	gjson.GetBytes(body, "models").ForEach(func(_, v gjson.Result) bool {
		m := ModelInfo{ID: v.Get("model").String(), Name: v.Get("name").String()}
		if m.ID == "" {
			m.ID = m.Name
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		if m.ID != "" {
			models = append(models, m)
		}
		return true
	})
	return models, nil
}

func httpErrorFrom(res *http.Response) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	detail := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error"); msg.Exists() {
			detail = msg.String()
		}
	}
	return &HTTPError{Status: res.StatusCode, Detail: detail}
}

func joinEndpoint(endpoint, p string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/") + p
}

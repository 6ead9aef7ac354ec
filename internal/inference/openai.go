package inference

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient targets OpenAI-compatible chat completion servers (llama.cpp,
// vLLM, LM Studio, Ollama's /v1 surface). The context window is decided by
// the server and ContextWindow is not sent.
type OpenAIClient struct {
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

func NewOpenAIClient(apiKey string, timeout time.Duration) *OpenAIClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (c *OpenAIClient) clientFor(endpoint string) *openai.Client {
	cfg := openai.DefaultConfig(c.apiKey)
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	cfg.BaseURL = base
	cfg.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(cfg)
}

func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	client := c.clientFor(req.Endpoint)

	start := c.now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: float32(req.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		return Generation{}, openAIError(ctx, "chat completion", err)
	}
	elapsed := c.now().Sub(start)

	if len(resp.Choices) == 0 {
		return Generation{}, &NetworkError{Op: "chat completion", Err: errors.New("response has no choices")}
	}
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return Generation{
		Text:    CleanResponse(resp.Choices[0].Message.Content),
		Model:   model,
		Elapsed: elapsed,
	}, nil
}

func (c *OpenAIClient) ListModels(ctx context.Context, endpoint string) ([]ModelInfo, error) {
	list, err := c.clientFor(endpoint).ListModels(ctx)
	if err != nil {
		return nil, openAIError(ctx, "list models", err)
	}
	models := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, ModelInfo{ID: m.ID, Name: m.ID})
	}
	return models, nil
}

func openAIError(ctx context.Context, op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPError{Status: apiErr.HTTPStatusCode, Detail: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &HTTPError{Status: reqErr.HTTPStatusCode, Detail: http.StatusText(reqErr.HTTPStatusCode)}
	}
	return transportError(ctx, op, err)
}

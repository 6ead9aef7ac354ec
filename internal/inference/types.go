package inference

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GenerateRequest is a single non-streaming completion.
type GenerateRequest struct {
	Endpoint      string
	Model         string
	System        string
	Prompt        string
	Temperature   float64
	ContextWindow int
}

// Generation is a cleaned model response.
type Generation struct {
	Text    string
	Model   string
	Elapsed time.Duration
}

// ModelInfo describes one model offered by the endpoint.
type ModelInfo struct {
	ID   string `json:"model"`
	Name string `json:"name"`
}

// SpeechRequest asks the speech endpoint to voice Input.
type SpeechRequest struct {
	Endpoint string
	Model    string
	Voice    string
	Speed    float64
	Input    string
}

// Speech is a synthesized audio payload.
type Speech struct {
	Audio       []byte
	ContentType string
	Filename    string
}

// Generator produces completions. Cancelling ctx aborts the request.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)
}

// ModelLister enumerates the models available at an endpoint.
type ModelLister interface {
	ListModels(ctx context.Context, endpoint string) ([]ModelInfo, error)
}

// Client is the full generate-side surface.
type Client interface {
	Generator
	ModelLister
}

// SpeechSynthesizer converts text to audio.
type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) (Speech, error)
}

// ErrAborted is returned when the caller cancelled an in-flight request.
var ErrAborted = errors.New("request aborted")

// HTTPError is a non-success status from an inference endpoint.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Detail)
}

// ProviderError is a failure the endpoint reported inside an otherwise
// successful response.
type ProviderError struct {
	Provider string
	Detail   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Provider, e.Detail)
}

// NetworkError is a transport failure talking to an endpoint.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// transportError maps a failed round trip to ErrAborted when the caller
// cancelled, otherwise to a NetworkError.
func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ErrAborted
	}
	return &NetworkError{Op: op, Err: err}
}

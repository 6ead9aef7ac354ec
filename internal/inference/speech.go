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
)

const (
	DefaultSpeechModel = "kokoro"
	DefaultSpeechVoice = "af_sky"
)

type speechPayload struct {
	Model string  `json:"model"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Input string  `json:"input"`
}

// SpeechClient calls an OpenAI-compatible /v1/audio/speech endpoint such as
// kokoro-fastapi.
type SpeechClient struct {
	client *http.Client
}

func NewSpeechClient(timeout time.Duration) *SpeechClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &SpeechClient{client: &http.Client{Timeout: timeout}}
}

func (c *SpeechClient) SynthesizeSpeech(ctx context.Context, req SpeechRequest) (Speech, error) {
	input := SpeechText(req.Input)
	if input == "" {
		return Speech{}, errors.New("nothing to speak")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = DefaultSpeechModel
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = DefaultSpeechVoice
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}

	payload, err := json.Marshal(speechPayload{Model: model, Voice: voice, Speed: speed, Input: input})
	if err != nil {
		return Speech{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinEndpoint(req.Endpoint, "/v1/audio/speech"), bytes.NewReader(payload))
	if err != nil {
		return Speech{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Speech{}, transportError(ctx, "send speech request", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Speech{}, httpErrorFrom(res)
	}
	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return Speech{}, transportError(ctx, "read speech response", err)
	}

	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return Speech{
		Audio:       audio,
		ContentType: contentType,
		Filename:    ParseFilename(res.Header.Get("Content-Disposition")),
	}, nil
}

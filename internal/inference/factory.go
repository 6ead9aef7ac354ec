package inference

import (
	"fmt"
	"strings"
	"time"
)

// Config controls generator construction.
type Config struct {
	API     string
	APIKey  string
	Timeout time.Duration
}

// NewClient returns the generate client for the configured API flavour.
func NewClient(cfg Config) (Client, error) {
	api := strings.ToLower(strings.TrimSpace(cfg.API))
	if api == "" {
		api = "ollama"
	}

	switch api {
	case "ollama":
		return NewOllamaClient(cfg.Timeout), nil
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported llm api %q (expected ollama|openai)", cfg.API)
	}
}

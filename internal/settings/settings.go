package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	DefaultLLMEndpoint    = "http://localhost:11434"
	DefaultSpeechEndpoint = "http://localhost:8880"
)

// Settings are user preferences shared by every page: where the model and
// speech servers live and which model is selected.
type Settings struct {
	LLMEndpoint    string `yaml:"llmEndpoint" json:"llm_endpoint"`
	SpeechEndpoint string `yaml:"speechEndpoint" json:"speech_endpoint"`
	Model          string `yaml:"model,omitempty" json:"model"`
}

// Store loads and saves settings.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		LLMEndpoint:    DefaultLLMEndpoint,
		SpeechEndpoint: DefaultSpeechEndpoint,
	}
}

// WithDefaults fills empty endpoints from d.
func (s Settings) WithDefaults(d Settings) Settings {
	if strings.TrimSpace(s.LLMEndpoint) == "" {
		s.LLMEndpoint = d.LLMEndpoint
	}
	if strings.TrimSpace(s.SpeechEndpoint) == "" {
		s.SpeechEndpoint = d.SpeechEndpoint
	}
	if strings.TrimSpace(s.Model) == "" {
		s.Model = d.Model
	}
	return s
}

func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.LLMEndpoint, validation.Required, validation.By(httpURL)),
		validation.Field(&s.SpeechEndpoint, validation.Required, validation.By(httpURL)),
		validation.Field(&s.Model, validation.Length(0, 256)),
	)
}

func httpURL(value interface{}) error {
	raw, _ := value.(string)
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("must be a valid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

// SetModel loads the settings, replaces the selected model and saves them.
func SetModel(ctx context.Context, store Store, model string) (Settings, error) {
	s, err := store.Load(ctx)
	if err != nil {
		return Settings{}, err
	}
	s.Model = strings.TrimSpace(model)
	if err := store.Save(ctx, s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

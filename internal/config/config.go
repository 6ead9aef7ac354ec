package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config contains all runtime settings for the page chat service and CLI.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	MetricsEnabled           bool
	CORSOrigins              []string

	LLMAPI      string
	LLMAPIKey   string
	LLMEndpoint string
	LLMTimeout  time.Duration

	SpeechEndpoint string
	SpeechVoice    string
	SpeechSpeed    float64
	SpeechTimeout  time.Duration

	HistoryBackend string
	HistoryPath    string
	DatabaseURL    string

	SettingsPath string

	ContentFetchTimeout time.Duration
	ContentMaxBytes     int

	LogLevel slog.Level
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", "127.0.0.1:8787"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "pagechat"),
		MetricsEnabled:   true,
		CORSOrigins:      listFromEnv("APP_CORS_ORIGINS", []string{"chrome-extension://*", "moz-extension://*"}),
		LLMAPI:           strings.ToLower(envOrDefault("LLM_API", "ollama")),
		LLMAPIKey:        stringsTrimSpace("LLM_API_KEY"),
		LLMEndpoint:      envOrDefault("LLM_ENDPOINT", "http://localhost:11434"),
		SpeechEndpoint:   envOrDefault("SPEECH_ENDPOINT", "http://localhost:8880"),
		// Kokoro voice the extension uses by default.
		SpeechVoice:              envOrDefault("SPEECH_VOICE", "af_sky"),
		SpeechSpeed:              1.0,
		HistoryBackend:           strings.ToLower(envOrDefault("HISTORY_BACKEND", "auto")),
		HistoryPath:              envOrDefault("HISTORY_PATH", filepath.Join(dataDir(), "pagechat", "history.db")),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		SettingsPath:             envOrDefault("SETTINGS_PATH", filepath.Join(configDir(), "pagechat", "settings.yaml")),
		ContentMaxBytes:          32 << 20,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		LLMTimeout:               5 * time.Minute,
		SpeechTimeout:            2 * time.Minute,
		ContentFetchTimeout:      30 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MetricsEnabled, err = boolFromEnv("APP_METRICS_ENABLED", cfg.MetricsEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechTimeout, err = durationFromEnv("SPEECH_TIMEOUT", cfg.SpeechTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechSpeed, err = floatFromEnv("SPEECH_SPEED", cfg.SpeechSpeed)
	if err != nil {
		return Config{}, err
	}
	cfg.ContentFetchTimeout, err = durationFromEnv("CONTENT_FETCH_TIMEOUT", cfg.ContentFetchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ContentMaxBytes, err = intFromEnv("CONTENT_MAX_BYTES", cfg.ContentMaxBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel, err = levelFromEnv("LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BindAddr, validation.Required),
		validation.Field(&c.LLMAPI, validation.In("ollama", "openai")),
		validation.Field(&c.LLMEndpoint, validation.Required),
		validation.Field(&c.SpeechEndpoint, validation.Required),
		validation.Field(&c.SpeechSpeed, validation.Min(0.25), validation.Max(4.0)),
		validation.Field(&c.HistoryBackend, validation.In("auto", "memory", "bolt", "sqlite", "postgres")),
		validation.Field(&c.DatabaseURL, validation.When(c.HistoryBackend == "postgres", validation.Required)),
		validation.Field(&c.ContentMaxBytes, validation.Min(1024)),
		validation.Field(&c.LLMTimeout, validation.Min(time.Second)),
		validation.Field(&c.ContentFetchTimeout, validation.Min(time.Second)),
	)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func levelFromEnv(key string, fallback slog.Level) (slog.Level, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return level, nil
}

func dataDir() string {
	if v := stringsTrimSpace("XDG_DATA_HOME"); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return os.TempDir()
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return os.TempDir()
}

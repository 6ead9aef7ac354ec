package history

import (
	"context"
	"fmt"
	"strings"
)

// Config selects a history backend.
type Config struct {
	// Backend is one of auto, memory, bolt, sqlite, postgres.
	Backend     string
	Path        string
	DatabaseURL string
}

// NewStore builds the configured backend. auto picks postgres when a
// database URL is set, bolt when a path is set, in-memory otherwise.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" || backend == "auto" {
		switch {
		case strings.TrimSpace(cfg.DatabaseURL) != "":
			backend = "postgres"
		case strings.TrimSpace(cfg.Path) != "":
			backend = "bolt"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "memory":
		return NewInMemoryStore(), nil
	case "bolt":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("history path is required for bolt backend")
		}
		return NewBoltStore(cfg.Path)
	case "sqlite":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("history path is required for sqlite backend")
		}
		return NewSQLiteStore(ctx, cfg.Path)
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres backend")
		}
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.Backend)
	}
}

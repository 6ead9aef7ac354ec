package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/pagechat/internal/inference"
	"github.com/ent0n29/pagechat/internal/settings"
)

const (
	probeTimeout      = 250 * time.Millisecond
	modelProbeTimeout = 3 * time.Second
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	LLMAPI         string            `json:"llm_api"`
	HistoryBackend string            `json:"history_backend"`
	Ready          bool              `json:"ready"`
	Checks         []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, r *http.Request) {
	cur, err := s.settings.Load(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	checks := make([]onboardingCheck, 0, 6)
	checks = append(checks, s.modelChecks(r.Context(), cur)...)
	checks = append(checks, speechCheck(cur.SpeechEndpoint))
	checks = append(checks, s.historyCheck())

	ready := true
	for _, c := range checks {
		if c.Status == "error" {
			ready = false
			break
		}
	}
	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		LLMAPI:         s.cfg.LLMAPI,
		HistoryBackend: s.cfg.HistoryBackend,
		Ready:          ready,
		Checks:         checks,
	})
}

// modelChecks lists the models at the configured endpoint and verifies the
// selected one is among them.
func (s *Server) modelChecks(ctx context.Context, cur settings.Settings) []onboardingCheck {
	if s.models == nil {
		return []onboardingCheck{{
			ID:     "llm_endpoint",
			Status: "error",
			Label:  "Language model",
			Detail: "model client is not configured",
		}}
	}

	ctx, cancel := context.WithTimeout(ctx, modelProbeTimeout)
	defer cancel()
	models, err := s.models.ListModels(ctx, cur.LLMEndpoint)
	if err != nil {
		return []onboardingCheck{{
			ID:     "llm_endpoint",
			Status: "error",
			Label:  "Language model",
			Detail: fmt.Sprintf("%s is not reachable: %v", cur.LLMEndpoint, err),
			Fix:    "Start Ollama (`ollama serve`) or update llm_endpoint in settings.",
		}}
	}

	checks := []onboardingCheck{{
		ID:     "llm_endpoint",
		Status: "ok",
		Label:  "Language model",
		Detail: fmt.Sprintf("%d models at %s", len(models), cur.LLMEndpoint),
	}}
	switch {
	case len(models) == 0:
		checks = append(checks, onboardingCheck{
			ID:     "llm_model",
			Status: "error",
			Label:  "Model",
			Detail: "no models installed",
			Fix:    "Pull one, for example `ollama pull llama3.2`.",
		})
	case strings.TrimSpace(cur.Model) == "":
		checks = append(checks, onboardingCheck{
			ID:     "llm_model",
			Status: "warn",
			Label:  "Model",
			Detail: "none selected; the endpoint default is used",
			Fix:    "Pick a model with `pagechat model set <name>`.",
		})
	case !hasModel(models, cur.Model):
		checks = append(checks, onboardingCheck{
			ID:     "llm_model",
			Status: "warn",
			Label:  "Model",
			Detail: fmt.Sprintf("%s is not installed at the endpoint", cur.Model),
			Fix:    "Pull the model or select another one.",
		})
	default:
		checks = append(checks, onboardingCheck{
			ID:     "llm_model",
			Status: "ok",
			Label:  "Model",
			Detail: cur.Model,
		})
	}
	return checks
}

func speechCheck(endpoint string) onboardingCheck {
	if err := probeTCP(endpoint); err != nil {
		return onboardingCheck{
			ID:     "speech_endpoint",
			Status: "warn",
			Label:  "Speech (Kokoro)",
			Detail: fmt.Sprintf("%s is not reachable", endpoint),
			Fix:    "Start Kokoro-FastAPI or update speech_endpoint in settings. Text features work without it.",
		}
	}
	return onboardingCheck{
		ID:     "speech_endpoint",
		Status: "ok",
		Label:  "Speech (Kokoro)",
		Detail: endpoint,
	}
}

func (s *Server) historyCheck() onboardingCheck {
	backend := strings.TrimSpace(s.cfg.HistoryBackend)
	if backend == "memory" {
		return onboardingCheck{
			ID:     "history_store",
			Status: "warn",
			Label:  "History persistence",
			Detail: "in-memory only",
			Fix:    "Set HISTORY_BACKEND=bolt or sqlite to keep transcripts across restarts.",
		}
	}
	return onboardingCheck{
		ID:     "history_store",
		Status: "ok",
		Label:  "History persistence",
		Detail: backend,
	}
}

func hasModel(models []inference.ModelInfo, id string) bool {
	for _, m := range models {
		if m.ID == id || m.Name == id {
			return true
		}
	}
	return false
}

// probeTCP dials the host of raw to check something is listening.
func probeTCP(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	host := strings.TrimSpace(u.Host)
	if host == "" {
		return fmt.Errorf("host missing")
	}
	addr := host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		addr = net.JoinHostPort(u.Hostname(), port)
	}
	c, err := net.DialTimeout("tcp", addr, probeTimeout)
	if err != nil {
		return err
	}
	_ = c.Close()
	return nil
}

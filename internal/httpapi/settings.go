package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ent0n29/pagechat/internal/settings"
)

const modelListTimeout = 10 * time.Second

type settingsResponse struct {
	settings.Settings
	SpeechVoice string  `json:"speech_voice"`
	SpeechSpeed float64 `json:"speech_speed"`
}

// settingsPatch updates only the fields that are present.
type settingsPatch struct {
	LLMEndpoint    *string `json:"llm_endpoint,omitempty"`
	SpeechEndpoint *string `json:"speech_endpoint,omitempty"`
	Model          *string `json:"model,omitempty"`
}

func (p settingsPatch) apply(cur settings.Settings) settings.Settings {
	if p.LLMEndpoint != nil {
		cur.LLMEndpoint = strings.TrimSpace(*p.LLMEndpoint)
	}
	if p.SpeechEndpoint != nil {
		cur.SpeechEndpoint = strings.TrimSpace(*p.SpeechEndpoint)
	}
	if p.Model != nil {
		cur.Model = strings.TrimSpace(*p.Model)
	}
	return cur
}

type modelSummary struct {
	ID       string `json:"model"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

type listModelsResponse struct {
	Endpoint string         `json:"endpoint"`
	Selected string         `json:"selected,omitempty"`
	Models   []modelSummary `json:"models"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cur, err := s.settings.Load(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.settingsView(cur))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cur, err := s.settings.Load(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	next := patch.apply(cur)
	if err := s.settings.Save(r.Context(), next); err != nil {
		var verr validation.Errors
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, "invalid_settings", err.Error())
			return
		}
		s.respondFailure(w, err)
		return
	}
	saved, err := s.settings.Load(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.logger.Info("settings updated", "llm_endpoint", saved.LLMEndpoint, "speech_endpoint", saved.SpeechEndpoint, "model", saved.Model)
	respondJSON(w, http.StatusOK, s.settingsView(saved))
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "model listing is not configured")
		return
	}
	cur, err := s.settings.Load(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), modelListTimeout)
	defer cancel()
	models, err := s.models.ListModels(ctx, cur.LLMEndpoint)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	out := listModelsResponse{
		Endpoint: cur.LLMEndpoint,
		Selected: cur.Model,
		Models:   make([]modelSummary, 0, len(models)),
	}
	for _, m := range models {
		out.Models = append(out.Models, modelSummary{
			ID:       m.ID,
			Name:     m.Name,
			Selected: cur.Model != "" && m.ID == cur.Model,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) settingsView(cur settings.Settings) settingsResponse {
	return settingsResponse{
		Settings:    cur,
		SpeechVoice: s.cfg.SpeechVoice,
		SpeechSpeed: s.cfg.SpeechSpeed,
	}
}

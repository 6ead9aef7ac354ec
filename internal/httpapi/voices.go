package httpapi

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ent0n29/pagechat/internal/inference"
)

const defaultPreviewText = "Hello! This is how summaries will sound."

type voiceSummary struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

type listVoicesResponse struct {
	DefaultVoiceID string         `json:"default_voice_id"`
	Recommended    []voiceSummary `json:"recommended"`
	Voices         []voiceSummary `json:"voices"`
}

var kokoroVoices = []voiceSummary{
	{VoiceID: "af_sky", Name: "Sky (Kokoro, US, light)", Category: "kokoro", Labels: map[string]string{"gender": "female", "accent": "american"}},
	{VoiceID: "af_heart", Name: "Heart (Kokoro, US, warm)", Category: "kokoro", Labels: map[string]string{"gender": "female", "accent": "american"}},
	{VoiceID: "af_bella", Name: "Bella (Kokoro, US, bright)", Category: "kokoro", Labels: map[string]string{"gender": "female", "accent": "american"}},
	{VoiceID: "af_nicole", Name: "Nicole (Kokoro, US, steady)", Category: "kokoro", Labels: map[string]string{"gender": "female", "accent": "american"}},
	{VoiceID: "am_adam", Name: "Adam (Kokoro, US, even)", Category: "kokoro", Labels: map[string]string{"gender": "male", "accent": "american"}},
	{VoiceID: "am_michael", Name: "Michael (Kokoro, US, deep)", Category: "kokoro", Labels: map[string]string{"gender": "male", "accent": "american"}},
	{VoiceID: "bf_emma", Name: "Emma (Kokoro, UK, velvety)", Category: "kokoro", Labels: map[string]string{"gender": "female", "accent": "british"}},
	{VoiceID: "bm_george", Name: "George (Kokoro, UK, crisp)", Category: "kokoro", Labels: map[string]string{"gender": "male", "accent": "british"}},
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	defaultID := strings.TrimSpace(s.cfg.SpeechVoice)
	if defaultID == "" {
		defaultID = inference.DefaultSpeechVoice
	}
	respondJSON(w, http.StatusOK, listVoicesResponse{
		DefaultVoiceID: defaultID,
		Recommended: []voiceSummary{
			kokoroVoices[0], // af_sky
			kokoroVoices[1], // af_heart
			kokoroVoices[6], // bf_emma
		},
		Voices: kokoroVoices,
	})
}

type previewSpeechRequest struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Text    string  `json:"text"`
}

func (r previewSpeechRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Speed, validation.Min(0.0), validation.Max(4.0)),
		validation.Field(&r.Text, validation.Length(0, 500)),
	)
}

// handlePreviewSpeech voices a short sample with the given voice so the
// user can pick one before speaking a page.
func (s *Server) handlePreviewSpeech(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "speech synthesis is not configured")
		return
	}

	var req previewSpeechRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		voiceID = s.cfg.SpeechVoice
	}
	speed := req.Speed
	if speed == 0 {
		speed = s.cfg.SpeechSpeed
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = defaultPreviewText
	}

	cur, err := s.settings.Load(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	speech, err := s.speech.SynthesizeSpeech(r.Context(), inference.SpeechRequest{
		Endpoint: cur.SpeechEndpoint,
		Model:    inference.DefaultSpeechModel,
		Voice:    voiceID,
		Speed:    speed,
		Input:    text,
	})
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	w.Header().Set("X-Voice-ID", voiceID)
	writeSpeech(w, speech)
}

package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ent0n29/pagechat/internal/inference"
)

const maxQuestionLength = 16000

// summarizeRequest optionally carries the model picked alongside the
// summarize click; it is saved as the selected model first.
type summarizeRequest struct {
	Model string `json:"model,omitempty"`
}

func (r summarizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Model, validation.Length(0, 200)),
	)
}

type askRequest struct {
	Question string `json:"question"`
}

func (r askRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Question, validation.Length(0, maxQuestionLength)),
	)
}

type regenerateRequest struct {
	Index *int `json:"index"`
}

func (r regenerateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Index, validation.NotNil, validation.Min(0)),
	)
}

// speechRequest voices either free text or the assistant turn at Index.
// With neither set, the latest assistant turn is voiced.
type speechRequest struct {
	Index *int   `json:"index,omitempty"`
	Text  string `json:"text,omitempty"`
}

func (r speechRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Index, validation.Min(0)),
		validation.Field(&r.Text, validation.Length(0, maxQuestionLength)),
	)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	conv := sess.Conversation()
	if _, err := conv.FetchContent(r.Context()); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess, conv.Snapshot()))
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	var req summarizeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	conv := sess.Conversation()
	if model := strings.TrimSpace(req.Model); model != "" {
		if _, err := conv.SelectModel(r.Context(), model); err != nil {
			s.respondFailure(w, err)
			return
		}
	}
	if _, err := conv.Summarize(r.Context()); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess, conv.Snapshot()))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	var req askRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	conv := sess.Conversation()
	if _, err := conv.Ask(r.Context(), req.Question); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess, conv.Snapshot()))
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	var req regenerateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	conv := sess.Conversation()
	if _, err := conv.Regenerate(r.Context(), *req.Index); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess, conv.Snapshot()))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	cancelled := sess.Conversation().Cancel()
	if cancelled {
		s.metrics.ObserveSessionEvent("cancelled")
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	conv := sess.Conversation()
	if err := conv.Clear(r.Context()); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess, conv.Snapshot()))
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	conv := sess.Conversation()
	var (
		speech inference.Speech
		err    error
	)
	switch {
	case strings.TrimSpace(req.Text) != "":
		speech, err = conv.SpeakText(r.Context(), req.Text)
	case req.Index != nil:
		speech, err = conv.Speak(r.Context(), *req.Index)
	default:
		speech, err = conv.Speak(r.Context(), conv.Snapshot().Transcript.LastAssistant())
	}
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	writeSpeech(w, speech)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	snap := sess.Conversation().Snapshot()

	switch format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format {
	case "", "json":
		respondJSON(w, http.StatusOK, viewOf(sess, snap))
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(snap.Transcript.Render()))
	case "html":
		out, err := s.html.Transcript(snap.Transcript)
		if err != nil {
			s.respondFailure(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out))
	default:
		respondError(w, http.StatusBadRequest, "invalid_format", "format must be json, text or html")
	}
}

// writeSpeech sends synthesized audio as a download.
func writeSpeech(w http.ResponseWriter, speech inference.Speech) {
	contentType := strings.TrimSpace(speech.ContentType)
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	filename := strings.TrimSpace(speech.Filename)
	if filename == "" {
		filename = inference.DefaultSpeechFilename
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(speech.Audio)
}

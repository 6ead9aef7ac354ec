package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/ent0n29/pagechat/internal/config"
	"github.com/ent0n29/pagechat/internal/conversation"
	"github.com/ent0n29/pagechat/internal/inference"
	"github.com/ent0n29/pagechat/internal/observability"
	"github.com/ent0n29/pagechat/internal/reliability"
	"github.com/ent0n29/pagechat/internal/render"
	"github.com/ent0n29/pagechat/internal/session"
	"github.com/ent0n29/pagechat/internal/settings"
	"github.com/ent0n29/pagechat/internal/transcript"
)

// Deps are the collaborators the HTTP surface drives.
type Deps struct {
	Sessions *session.Manager
	Settings settings.Store
	Models   inference.ModelLister
	Speech   inference.SpeechSynthesizer
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	settings settings.Store
	models   inference.ModelLister
	speech   inference.SpeechSynthesizer
	metrics  *observability.Metrics
	logger   *slog.Logger
	html     *render.HTMLRenderer
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.CORSOrigins
	return &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		settings: deps.Settings,
		models:   deps.Models,
		speech:   deps.Speech,
		metrics:  deps.Metrics,
		logger:   logger,
		html:     render.NewHTMLRenderer(),
		static:   newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				if originAllowed(origin, origins) {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Router returns the API wrapped in CORS handling for the extension origins.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.cfg.MetricsEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			s.metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/fetch", s.handleFetch)
			r.Post("/summarize", s.handleSummarize)
			r.Post("/ask", s.handleAsk)
			r.Post("/regenerate", s.handleRegenerate)
			r.Post("/cancel", s.handleCancel)
			r.Delete("/history", s.handleClearHistory)
			r.Post("/speech", s.handleSpeech)
			r.Get("/transcript", s.handleTranscript)
			r.Get("/events", s.handleSessionEvents)
			r.Post("/end", s.handleEndSession)
		})
	})

	r.Get("/v1/models", s.handleListModels)
	r.Get("/v1/settings", s.handleGetSettings)
	r.Put("/v1/settings", s.handlePutSettings)
	r.Get("/v1/voices", s.handleListVoices)
	r.Post("/v1/speech/preview", s.handlePreviewSpeech)
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
		ExposedHeaders: []string{"Content-Disposition"},
	})
	return c.Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
		"history_backend": s.cfg.HistoryBackend,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"history_backend": s.cfg.HistoryBackend,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sess, err := s.sessions.Create(req.URL)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		URL:             sess.URL,
		Status:          sess.Status,
		State:           sess.Conversation().Snapshot().State,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess, sess.Conversation().Snapshot()))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("ended")
	respondJSON(w, http.StatusOK, sess)
}

// acquire resolves the {id} route parameter to an active session.
func (s *Server) acquire(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, false
	}
	sess, err := s.sessions.Acquire(id)
	if err != nil {
		s.respondFailure(w, err)
		return nil, false
	}
	return sess, true
}

// sessionView is the session plus its conversation snapshot.
type sessionView struct {
	SessionID  string                `json:"session_id"`
	URL        string                `json:"url"`
	Status     session.Status        `json:"status"`
	Seq        uint64                `json:"seq"`
	State      conversation.State    `json:"state"`
	StatusText string                `json:"status_text,omitempty"`
	PageID     string                `json:"page_id,omitempty"`
	Transcript transcript.Transcript `json:"transcript"`
}

func viewOf(sess *session.Session, snap conversation.Snapshot) sessionView {
	return sessionView{
		SessionID:  sess.ID,
		URL:        sess.URL,
		Status:     sess.Status,
		Seq:        snap.Seq,
		State:      snap.State,
		StatusText: snap.Status,
		PageID:     snap.PageID.String(),
		Transcript: snap.Transcript,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondFailure writes err using its reliability classification.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	c := reliability.Classify(err)
	if c.HTTPStatus >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", c.Code, "error", err)
	}
	respondJSON(w, c.HTTPStatus, errorResponse{Error: c.Message, Code: c.Code, Retryable: c.Retryable})
}

// originAllowed matches origin against patterns that may hold one "*".
func originAllowed(origin string, patterns []string) bool {
	origin = strings.ToLower(origin)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if p == "*" || p == origin {
			return true
		}
		prefix, suffix, ok := strings.Cut(p, "*")
		if !ok {
			continue
		}
		if len(origin) >= len(prefix)+len(suffix) && strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

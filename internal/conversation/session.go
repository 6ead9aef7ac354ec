package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/pagechat/internal/content"
	"github.com/ent0n29/pagechat/internal/history"
	"github.com/ent0n29/pagechat/internal/inference"
	"github.com/ent0n29/pagechat/internal/observability"
	"github.com/ent0n29/pagechat/internal/settings"
	"github.com/ent0n29/pagechat/internal/transcript"
)

type State string

const (
	StateIdle            State = "idle"
	StateFetchingContent State = "fetching_content"
	StateGenerating      State = "generating"
	StateAborting        State = "aborting"
)

type Op string

const (
	OpFetch      Op = "fetch_content"
	OpSummarize  Op = "summarize"
	OpAsk        Op = "ask"
	OpRegenerate Op = "regenerate"
	OpClear      Op = "clear"
	OpSpeech     Op = "speech"
)

const (
	StatusFetching   = "Fetching…"
	StatusGenerating = "Generating…"
	StatusStopped    = "Stopped."
)

// activity is the state an operation shows for as long as it holds the slot.
func (op Op) activity() (State, string) {
	switch op {
	case OpFetch:
		return StateFetchingContent, StatusFetching
	case OpSummarize, OpAsk, OpRegenerate:
		return StateGenerating, StatusGenerating
	default:
		return StateIdle, ""
	}
}

const defaultPersistTimeout = 5 * time.Second

// Snapshot is a consistent view of the session, delivered to listeners on
// every change. Seq increases with every change so stale views can be dropped.
type Snapshot struct {
	Seq        uint64                `json:"seq"`
	State      State                 `json:"state"`
	Status     string                `json:"status,omitempty"`
	PageID     content.PageID        `json:"page_id,omitempty"`
	Transcript transcript.Transcript `json:"transcript"`
}

// Listener receives change notifications. It is called outside the session
// lock and must not block for long.
type Listener func(Snapshot)

type Config struct {
	ID        string
	Source    content.Source
	History   history.Store
	Generator inference.Generator
	Speech    inference.SpeechSynthesizer
	Settings  settings.Store

	Voice          string
	Speed          float64
	PersistTimeout time.Duration

	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Session is the conversation state for one page activation. All transcript
// mutation goes through its operations, which run one at a time.
type Session struct {
	source         content.Source
	history        history.Store
	generator      inference.Generator
	speech         inference.SpeechSynthesizer
	settings       settings.Store
	voice          string
	speed          float64
	persistTimeout time.Duration
	metrics        *observability.Metrics
	logger         *slog.Logger

	// slot holds a token while an operation runs.
	slot    chan struct{}
	closing chan struct{}

	mu           sync.Mutex
	state        State
	status       string
	page         *content.Page
	turns        transcript.Transcript
	seq          uint64
	cancel       context.CancelFunc
	op           Op
	closed       bool
	listeners    map[uint64]Listener
	nextListener uint64
}

func New(cfg Config) (*Session, error) {
	if cfg.Source == nil {
		return nil, errors.New("conversation: content source is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("conversation: generator is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("conversation: settings store is required")
	}
	store := cfg.History
	if store == nil {
		store = history.NewInMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ID != "" {
		logger = logger.With("session_id", cfg.ID)
	}
	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = inference.DefaultSpeechVoice
	}
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1.0
	}

	return &Session{
		source:         cfg.Source,
		history:        store,
		generator:      cfg.Generator,
		speech:         cfg.Speech,
		settings:       cfg.Settings,
		voice:          voice,
		speed:          speed,
		persistTimeout: persistTimeout,
		metrics:        cfg.Metrics,
		logger:         logger,
		slot:           make(chan struct{}, 1),
		closing:        make(chan struct{}),
		state:          StateIdle,
		listeners:      make(map[uint64]Listener),
	}, nil
}

// Subscribe registers l for change notifications and returns a function
// that removes it.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// FetchContent acquires the page once per session and loads its stored
// transcript. Later calls return the cached page without any I/O. A failed
// fetch leaves nothing cached, so the next call tries again.
func (s *Session) FetchContent(ctx context.Context) (content.Page, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return content.Page{}, ErrClosed
	}
	if s.page != nil {
		p := *s.page
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	ctx, done, err := s.begin(ctx, OpFetch, false)
	if err != nil {
		return content.Page{}, err
	}
	page, err := s.ensurePage(ctx)
	return page, done(err)
}

// Summarize replaces the transcript with a fresh summary of the page.
func (s *Session) Summarize(ctx context.Context) (transcript.Transcript, error) {
	ctx, done, err := s.begin(ctx, OpSummarize, true)
	if err != nil {
		return nil, err
	}
	t, err := s.summarize(ctx)
	return t, done(err)
}

// Ask appends question and the model's answer. On failure the question is
// withdrawn and nothing is persisted.
func (s *Session) Ask(ctx context.Context, question string) (transcript.Transcript, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	ctx, done, err := s.begin(ctx, OpAsk, true)
	if err != nil {
		return nil, err
	}
	t, err := s.ask(ctx, question)
	return t, done(err)
}

// Regenerate discards the turn at index and everything after it, then
// produces a new turn in its place. Index 0 is the summary; any other index
// must follow a user question.
func (s *Session) Regenerate(ctx context.Context, index int) (transcript.Transcript, error) {
	ctx, done, err := s.begin(ctx, OpRegenerate, true)
	if err != nil {
		return nil, err
	}
	t, err := s.regenerate(ctx, index)
	return t, done(err)
}

// Clear empties the transcript and removes the page's stored history.
func (s *Session) Clear(ctx context.Context) error {
	ctx, done, err := s.begin(ctx, OpClear, true)
	if err != nil {
		return err
	}
	return done(s.clear(ctx))
}

// Cancel aborts the in-flight operation, if any. The operation rolls back
// before the next one may start. An operation is in flight from the moment it
// claims the slot until it has rolled back.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.cancel == nil || s.state == StateAborting {
		s.mu.Unlock()
		return false
	}
	s.cancel()
	s.state = StateAborting
	snap, ls := s.eventLocked()
	s.mu.Unlock()

	notify(snap, ls)
	s.logger.Info("cancel requested")
	return true
}

// SelectModel persists model as the generation model for later operations.
func (s *Session) SelectModel(ctx context.Context, model string) (settings.Settings, error) {
	return settings.SetModel(ctx, s.settings, model)
}

// Speak voices the assistant turn at index.
func (s *Session) Speak(ctx context.Context, index int) (inference.Speech, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return inference.Speech{}, ErrClosed
	}
	if s.page == nil {
		s.mu.Unlock()
		return inference.Speech{}, ErrNoPage
	}
	if index < 0 || index >= len(s.turns) {
		n := len(s.turns)
		s.mu.Unlock()
		return inference.Speech{}, fmt.Errorf("%w: no turn at index %d of %d", ErrNotSpeakable, index, n)
	}
	turn, ok := s.turns[index].(transcript.AssistantTurn)
	s.mu.Unlock()
	if !ok {
		return inference.Speech{}, fmt.Errorf("%w: turn %d is a user question", ErrNotSpeakable, index)
	}
	return s.SpeakText(ctx, turn.Content)
}

// SpeakText voices arbitrary text through the speech endpoint.
func (s *Session) SpeakText(ctx context.Context, text string) (inference.Speech, error) {
	if s.speech == nil {
		return inference.Speech{}, fmt.Errorf("%w: speech synthesis is not configured", ErrNotSpeakable)
	}
	prefs, err := s.preferences(ctx)
	if err != nil {
		return inference.Speech{}, err
	}
	start := time.Now()
	sp, err := s.speech.SynthesizeSpeech(ctx, inference.SpeechRequest{
		Endpoint: prefs.SpeechEndpoint,
		Model:    inference.DefaultSpeechModel,
		Voice:    s.voice,
		Speed:    s.speed,
		Input:    text,
	})
	if err != nil {
		s.metrics.ObserveProviderError("speech", providerCode(err))
		s.metrics.ObserveOperation(string(OpSpeech), outcomeOf(err), time.Since(start))
		return inference.Speech{}, err
	}
	s.metrics.ObserveOperation(string(OpSpeech), "ok", time.Since(start))
	return sp, nil
}

// Close aborts any in-flight operation, waits for its rollback and rejects
// further operations.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.slot <- struct{}{}

	s.mu.Lock()
	s.listeners = make(map[uint64]Listener)
	s.mu.Unlock()
	return nil
}

// begin claims the operation slot. With preempt set, the in-flight
// operation is cancelled first and begin waits until it has rolled back.
// The returned done func must be called with the operation's result.
func (s *Session) begin(ctx context.Context, op Op, preempt bool) (context.Context, func(error) error, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrClosed
	}
	var (
		snap    Snapshot
		ls      []Listener
		aborted bool
	)
	if preempt && s.cancel != nil && s.state != StateAborting {
		s.cancel()
		s.state = StateAborting
		snap, ls = s.eventLocked()
		aborted = true
	}
	s.mu.Unlock()
	if aborted {
		notify(snap, ls)
		s.logger.Info("preempting in-flight operation", "op", op)
	}

	select {
	case s.slot <- struct{}{}:
	case <-s.closing:
		return nil, nil, ErrClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.slot
		return nil, nil, ErrClosed
	}
	opCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.op = op
	s.state, s.status = op.activity()
	snap, ls = s.eventLocked()
	s.mu.Unlock()
	notify(snap, ls)

	start := time.Now()
	done := func(err error) error {
		cancel()
		return s.finish(op, start, err)
	}
	return opCtx, done, nil
}

// finish returns the session to Idle with the operation's outcome as status
// and frees the slot.
func (s *Session) finish(op Op, start time.Time, err error) error {
	outcome := outcomeOf(err)
	status := ""
	switch outcome {
	case "aborted":
		status = StatusStopped
		if !errors.Is(err, inference.ErrAborted) {
			err = fmt.Errorf("%w: %w", inference.ErrAborted, err)
		}
		s.logger.Info("operation stopped", "op", op)
	case "error":
		status = "Error: " + err.Error()
		s.logger.Debug("operation failed", "op", op, "error", err)
	}
	s.metrics.ObserveOperation(string(op), outcome, time.Since(start))

	s.mu.Lock()
	s.state = StateIdle
	s.status = status
	s.cancel = nil
	snap, ls := s.eventLocked()
	s.mu.Unlock()

	notify(snap, ls)
	<-s.slot
	return err
}

func (s *Session) ensurePage(ctx context.Context) (content.Page, error) {
	s.mu.Lock()
	if s.page != nil {
		p := *s.page
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	s.update(func() {
		if s.state != StateAborting {
			s.state = StateFetchingContent
			s.status = StatusFetching
		}
	})

	start := time.Now()
	page, err := s.source.Acquire(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		s.metrics.ObserveContentFetch(outcomeOf(err), time.Since(start))
		s.update(func() {
			s.page = nil
			s.turns = nil
		})
		return content.Page{}, err
	}
	s.metrics.ObserveContentFetch("ok", time.Since(start))

	turns := s.load(ctx, page.ID)
	s.update(func() {
		s.page = &page
		s.turns = turns
		if s.state != StateAborting {
			s.state, s.status = s.op.activity()
		}
	})
	s.logger.Debug("page content fetched", "page", page.ID, "kind", page.Kind, "chars", len(page.Text), "turns", len(turns))
	return page, nil
}

func (s *Session) summarize(ctx context.Context) (transcript.Transcript, error) {
	page, err := s.ensurePage(ctx)
	if err != nil {
		return nil, err
	}
	prefs, err := s.preferences(ctx)
	if err != nil {
		return nil, err
	}

	s.update(func() { s.turns = nil })
	s.forget(ctx, page.ID)

	turn, err := s.generate(ctx, prefs, summarySystemPrompt, page.Text, summaryTemperature)
	if err != nil {
		s.update(func() { s.turns = nil })
		s.forget(ctx, page.ID)
		return nil, err
	}

	t := transcript.Transcript{turn}
	s.update(func() { s.turns = t.Clone() })
	s.store(ctx, page.ID, t)
	return t, nil
}

func (s *Session) ask(ctx context.Context, question string) (transcript.Transcript, error) {
	page, err := s.ensurePage(ctx)
	if err != nil {
		return nil, err
	}
	prefs, err := s.preferences(ctx)
	if err != nil {
		return nil, err
	}

	var base, pending transcript.Transcript
	s.update(func() {
		base = s.turns.Clone()
		pending = append(base.Clone(), transcript.UserTurn{Content: question})
		s.turns = pending.Clone()
	})

	turn, err := s.generate(ctx, prefs, askSystemPrompt, askPrompt(page.Text, pending), askTemperature)
	if err != nil {
		s.update(func() { s.turns = base })
		return nil, err
	}

	final := append(pending.Clone(), turn)
	s.update(func() { s.turns = final.Clone() })
	s.store(ctx, page.ID, final)
	return final, nil
}

func (s *Session) regenerate(ctx context.Context, index int) (transcript.Transcript, error) {
	if _, err := s.ensurePage(ctx); err != nil {
		return nil, err
	}

	// Index 0 is the summary, whether or not one exists yet.
	if index == 0 {
		return s.summarize(ctx)
	}

	var (
		truncated transcript.Transcript
		n         int
	)
	s.mu.Lock()
	n = len(s.turns)
	s.mu.Unlock()
	if index < 0 || index >= n {
		return nil, &RegenerationError{Index: index, Reason: fmt.Sprintf("transcript has %d turns", n)}
	}
	s.update(func() {
		s.turns = s.turns.Truncate(index)
		truncated = s.turns.Clone()
	})

	question, ok := truncated[index-1].(transcript.UserTurn)
	if !ok {
		return nil, &RegenerationError{Index: index, Reason: "preceding turn is not a user question"}
	}

	// ask re-appends the question itself.
	s.mu.Lock()
	s.turns = truncated.Truncate(index - 1)
	s.mu.Unlock()
	return s.ask(ctx, question.Content)
}

func (s *Session) clear(ctx context.Context) error {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if page == nil {
		return ErrNoPage
	}
	s.update(func() { s.turns = nil })
	s.forget(ctx, page.ID)
	return nil
}

func (s *Session) generate(ctx context.Context, prefs settings.Settings, system, prompt string, temperature float64) (transcript.AssistantTurn, error) {
	if err := ctx.Err(); err != nil {
		return transcript.AssistantTurn{}, err
	}

	gen, err := s.generator.Generate(ctx, inference.GenerateRequest{
		Endpoint:      prefs.LLMEndpoint,
		Model:         prefs.Model,
		System:        system,
		Prompt:        prompt,
		Temperature:   temperature,
		ContextWindow: contextWindow,
	})
	if err == nil && ctx.Err() != nil {
		// Cancelled after the response arrived; the answer is discarded.
		err = ctx.Err()
	}
	if err != nil {
		if !IsAbort(err) {
			s.metrics.ObserveProviderError("llm", providerCode(err))
		}
		return transcript.AssistantTurn{}, err
	}

	model := prefs.Model
	if model == "" {
		model = gen.Model
	}
	return transcript.AssistantTurn{
		Content:         gen.Text,
		Model:           model,
		DurationSeconds: gen.Elapsed.Seconds(),
	}, nil
}

func (s *Session) preferences(ctx context.Context) (settings.Settings, error) {
	prefs, err := s.settings.Load(ctx)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return prefs, nil
}

// persistCtx detaches persistence from cancellation so rollbacks still land
// after an abort.
func (s *Session) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
}

func (s *Session) load(ctx context.Context, id content.PageID) transcript.Transcript {
	pctx, cancel := s.persistCtx(ctx)
	defer cancel()
	t, ok, err := s.history.Get(pctx, string(id))
	if err != nil {
		s.logger.Warn("load transcript failed", "page", id, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	if err := t.Validate(); err != nil {
		s.logger.Warn("stored transcript is malformed", "page", id, "error", err)
	}
	return t
}

func (s *Session) store(ctx context.Context, id content.PageID, t transcript.Transcript) {
	pctx, cancel := s.persistCtx(ctx)
	defer cancel()
	if err := s.history.Set(pctx, string(id), t); err != nil {
		s.metrics.ObserveHistoryWriteFailure("set")
		s.logger.Warn("persist transcript failed", "page", id, "error", err)
	}
}

func (s *Session) forget(ctx context.Context, id content.PageID) {
	pctx, cancel := s.persistCtx(ctx)
	defer cancel()
	if err := s.history.Remove(pctx, string(id)); err != nil {
		s.metrics.ObserveHistoryWriteFailure("remove")
		s.logger.Warn("remove transcript failed", "page", id, "error", err)
	}
}

// update applies mutate under the lock and notifies listeners afterwards.
func (s *Session) update(mutate func()) {
	s.mu.Lock()
	mutate()
	snap, ls := s.eventLocked()
	s.mu.Unlock()
	notify(snap, ls)
}

func (s *Session) eventLocked() (Snapshot, []Listener) {
	s.seq++
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	return s.snapshotLocked(), ls
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:        s.seq,
		State:      s.state,
		Status:     s.status,
		Transcript: s.turns.Clone(),
	}
	if s.page != nil {
		snap.PageID = s.page.ID
	}
	return snap
}

func notify(snap Snapshot, ls []Listener) {
	for _, l := range ls {
		l(snap)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsAbort(err):
		return "aborted"
	default:
		return "error"
	}
}

func providerCode(err error) string {
	var httpErr *inference.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("http_%d", httpErr.Status)
	}
	var netErr *inference.NetworkError
	if errors.As(err, &netErr) {
		return "network"
	}
	var provErr *inference.ProviderError
	if errors.As(err, &provErr) {
		return "provider"
	}
	return "other"
}

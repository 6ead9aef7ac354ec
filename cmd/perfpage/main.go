package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/ent0n29/pagechat/internal/protocol"
)

type options struct {
	baseURL        string
	pageURL        string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	cancelEvery    int
	cancelAfter    time.Duration
	texts          []string
	reset          bool
	verbose        bool
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	State  string `json:"state,omitempty"`
}

var defaultQuestions = []string{
	"What is the main point, in one sentence?",
	"Who is the intended audience?",
	"List two open questions the page leaves.",
	"What would you read next?",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "perfpage: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		cfg      options
		textsRaw string
	)
	cmd := &cobra.Command{
		Use:   "perfpage --page <url>",
		Short: "Replay summarize and ask turns against a running pagechat server and report latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.texts = append([]string(nil), defaultQuestions...)
			if strings.TrimSpace(textsRaw) != "" {
				cfg.texts = nil
				for _, part := range strings.Split(textsRaw, "|") {
					if t := strings.TrimSpace(part); t != "" {
						cfg.texts = append(cfg.texts, t)
					}
				}
			}
			if err := cfg.normalize(); err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return run(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8787", "pagechat base URL")
	f.StringVar(&cfg.pageURL, "page", "", "page URL to summarize and ask about")
	f.IntVar(&cfg.turns, "turns", 5, "number of turns to replay; the first is a summary")
	f.DurationVar(&cfg.interTurnDelay, "inter-turn", 200*time.Millisecond, "delay between turns")
	f.DurationVar(&cfg.turnTimeout, "turn-timeout", 3*time.Minute, "timeout per turn")
	f.IntVar(&cfg.cancelEvery, "cancel-every", 0, "cancel every Nth question over the websocket (0 disables)")
	f.DurationVar(&cfg.cancelAfter, "cancel-after", 300*time.Millisecond, "delay before a cancel is sent")
	f.StringVar(&textsRaw, "texts", "", "questions separated by '|' (optional)")
	f.BoolVar(&cfg.reset, "reset", false, "reset the server latency window before replaying")
	f.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	return cmd
}

func (o *options) normalize() error {
	o.baseURL = strings.TrimRight(strings.TrimSpace(o.baseURL), "/")
	if o.baseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if strings.TrimSpace(o.pageURL) == "" {
		return fmt.Errorf("page is required")
	}
	if o.turns <= 0 {
		return fmt.Errorf("turns must be > 0")
	}
	if len(o.texts) == 0 {
		return fmt.Errorf("texts produced no non-empty questions")
	}
	if o.cancelEvery < 0 {
		o.cancelEvery = 0
	}
	if o.interTurnDelay < 0 {
		o.interTurnDelay = 0
	}
	if o.turnTimeout < time.Second {
		o.turnTimeout = time.Second
	}
	return nil
}

type replay struct {
	cfg       options
	client    *http.Client
	sessionID string
	conn      *websocket.Conn
	samples   map[string][]time.Duration
	out       io.Writer
}

func run(ctx context.Context, out io.Writer, cfg options) error {
	rp := &replay{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.turnTimeout},
		samples: make(map[string][]time.Duration),
		out:     out,
	}

	if cfg.reset {
		if _, _, err := rp.do(ctx, http.MethodGet, "/v1/perf/latency?reset=1", nil); err != nil {
			return fmt.Errorf("reset latency window: %w", err)
		}
	}

	sessionID, err := rp.createSession(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	rp.sessionID = sessionID
	defer func() {
		_, _, _ = rp.do(context.Background(), http.MethodPost, rp.sessionPath("/end"), nil)
	}()
	rp.logf("perfpage: session=%s page=%s turns=%d", sessionID, cfg.pageURL, cfg.turns)

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()
	rp.conn = conn

	readErrCh := make(chan error, 1)
	go rp.readLoop(readErrCh)

	for i := 0; i < cfg.turns; i++ {
		select {
		case err := <-readErrCh:
			return fmt.Errorf("ws read: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if i == 0 {
			if err := rp.timed(ctx, "summarize", rp.sessionPath("/summarize"), nil); err != nil {
				return fmt.Errorf("turn 1 summarize: %w", err)
			}
		} else {
			question := cfg.texts[(i-1)%len(cfg.texts)]
			body := map[string]string{"question": question}
			if cfg.cancelEvery > 0 && i%cfg.cancelEvery == 0 {
				if err := rp.cancelled(ctx, body); err != nil {
					return fmt.Errorf("turn %d cancel: %w", i+1, err)
				}
			} else if err := rp.timed(ctx, "ask", rp.sessionPath("/ask"), body); err != nil {
				return fmt.Errorf("turn %d ask: %w", i+1, err)
			}
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	rp.logf("perfpage: replay completed")
	rp.report()
	return rp.reportServer(ctx)
}

// timed issues one operation and records its wall-clock latency.
func (rp *replay) timed(ctx context.Context, op, path string, body any) error {
	start := time.Now()
	status, raw, err := rp.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(raw)))
	}
	elapsed := time.Since(start)
	rp.samples[op] = append(rp.samples[op], elapsed)
	rp.logf("perfpage: %s %s turns=%d", op, elapsed.Round(time.Millisecond), gjson.GetBytes(raw, "transcript.#").Int())
	return nil
}

// cancelled starts a question and cancels it over the websocket, recording
// how long the server takes to roll back.
func (rp *replay) cancelled(ctx context.Context, body any) error {
	type result struct {
		status int
		raw    []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, raw, err := rp.do(ctx, http.MethodPost, rp.sessionPath("/ask"), body)
		done <- result{status, raw, err}
	}()

	time.Sleep(rp.cfg.cancelAfter)
	sent := time.Now()
	if err := rp.conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: rp.sessionID,
		Action:    protocol.ActionCancel,
		Reason:    "perf_replay",
		TSMs:      sent.UnixMilli(),
	}); err != nil {
		return err
	}

	res := <-done
	if res.err != nil {
		return res.err
	}
	switch {
	case res.status == http.StatusConflict && gjson.GetBytes(res.raw, "code").String() == "aborted":
		elapsed := time.Since(sent)
		rp.samples["cancel"] = append(rp.samples["cancel"], elapsed)
		rp.logf("perfpage: cancel rolled back in %s", elapsed.Round(time.Millisecond))
	case res.status == http.StatusOK:
		// The answer arrived before the cancel.
		rp.samples["cancel_missed"] = append(rp.samples["cancel_missed"], time.Since(sent))
		rp.logf("perfpage: cancel arrived after the answer")
	default:
		return fmt.Errorf("HTTP %d: %s", res.status, strings.TrimSpace(string(res.raw)))
	}
	return nil
}

func (rp *replay) createSession(ctx context.Context) (string, error) {
	status, raw, err := rp.do(ctx, http.MethodPost, "/v1/sessions", map[string]string{"url": rp.cfg.pageURL})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(raw)))
	}
	var out createSessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func (rp *replay) sessionPath(suffix string) string {
	return "/v1/sessions/" + url.PathEscape(rp.sessionID) + suffix
}

func (rp *replay) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rp.cfg.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := rp.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return 0, nil, err
	}
	return res.StatusCode, raw, nil
}

func (rp *replay) readLoop(readErrCh chan<- error) {
	for {
		_, data, err := rp.conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeErrorEvent):
			rp.logf("perfpage: error_event code=%s detail=%s", env.Code, env.Detail)
		case string(protocol.TypeSystemEvent):
			if env.Code == "cancel_ack" {
				rp.logf("perfpage: cancel_ack %s", env.Detail)
			}
		}
	}
}

func (rp *replay) report() {
	ops := make([]string, 0, len(rp.samples))
	for op := range rp.samples {
		ops = append(ops, op)
	}
	slices.Sort(ops)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("op", "n", "p50", "p95", "max")
	for _, op := range ops {
		s := rp.samples[op]
		t.Row(op, strconv.Itoa(len(s)),
			percentile(s, 0.50).Round(time.Millisecond).String(),
			percentile(s, 0.95).Round(time.Millisecond).String(),
			percentile(s, 1).Round(time.Millisecond).String())
	}
	fmt.Fprintln(rp.out, t.Render())
}

// reportServer prints the server-side latency window.
func (rp *replay) reportServer(ctx context.Context) error {
	status, raw, err := rp.do(ctx, http.MethodGet, "/v1/perf/latency", nil)
	if err != nil {
		return fmt.Errorf("fetch server latency: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("fetch server latency: HTTP %d", status)
	}
	fmt.Fprintln(rp.out, "server:")
	gjson.GetBytes(raw, "ops").ForEach(func(_, v gjson.Result) bool {
		fmt.Fprintf(rp.out, "  %s samples=%d p50=%.0fms p95=%.0fms\n",
			v.Get("op").String(), v.Get("samples").Int(), v.Get("p50_ms").Float(), v.Get("p95_ms").Float())
		return true
	})
	return nil
}

func (rp *replay) logf(format string, args ...any) {
	if rp.cfg.verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// percentile returns the nearest-rank percentile of samples.
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/sessions/" + url.PathEscape(sessionID) + "/events"
	return u.String(), nil
}

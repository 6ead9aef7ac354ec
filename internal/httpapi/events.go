package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/pagechat/internal/conversation"
	"github.com/ent0n29/pagechat/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleSessionEvents streams conversation snapshots over a websocket and
// accepts client_control messages. Snapshots are coalesced: a slow reader
// only ever receives the newest one.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.acquire(w, r)
	if !ok {
		return
	}
	conv := sess.Conversation()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	latest := make(chan conversation.Snapshot, 1)
	control := make(chan any, 16)

	var (
		pushMu sync.Mutex
		pushed uint64
	)
	push := func(snap conversation.Snapshot) {
		pushMu.Lock()
		defer pushMu.Unlock()
		if snap.Seq < pushed {
			return
		}
		pushed = snap.Seq
		select {
		case <-latest:
		default:
		}
		latest <- snap
	}
	unsubscribe := conv.Subscribe(push)
	defer unsubscribe()
	push(conv.Snapshot())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()

		var sent uint64
		first := true
		write := func(msg any, msgType protocol.MessageType) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.ObserveWSMessage("outbound_error", string(msgType))
				cancel()
				return false
			}
			s.metrics.ObserveWSMessage("outbound", string(msgType))
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			case msg := <-control:
				t, _ := messageTypeOf(msg)
				if !write(msg, t) {
					return
				}
			case snap := <-latest:
				if !first && snap.Seq <= sent {
					continue
				}
				first = false
				sent = snap.Seq
				if !write(protocol.TranscriptUpdate{
					Type:       protocol.TypeTranscriptUpdate,
					SessionID:  sess.ID,
					Seq:        snap.Seq,
					PageID:     snap.PageID.String(),
					Transcript: snap.Transcript,
				}, protocol.TypeTranscriptUpdate) {
					return
				}
				if !write(protocol.StatusEvent{
					Type:      protocol.TypeStatusEvent,
					SessionID: sess.ID,
					Seq:       snap.Seq,
					State:     string(snap.State),
					Status:    snap.Status,
				}, protocol.TypeStatusEvent) {
					return
				}
			}
		}
	}()

	enqueue := func(msg any) {
		select {
		case control <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the queue is saturated.
			t, _ := messageTypeOf(msg)
			s.metrics.ObserveWSMessage("dropped", string(t))
		}
	}

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		msg, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		s.metrics.ObserveWSMessage("inbound", string(msg.Type))
		_ = s.sessions.Touch(sess.ID)

		switch msg.Action {
		case protocol.ActionCancel:
			cancelled := conv.Cancel()
			detail := "nothing to cancel"
			if cancelled {
				detail = "cancel requested"
				s.metrics.ObserveSessionEvent("cancelled")
			}
			enqueue(protocol.SystemEvent{
				Type:      protocol.TypeSystemEvent,
				SessionID: sess.ID,
				Code:      "cancel_ack",
				Detail:    detail,
			})
		case protocol.ActionPing:
			enqueue(protocol.SystemEvent{
				Type:      protocol.TypeSystemEvent,
				SessionID: sess.ID,
				Code:      "pong",
			})
		}
	}

	cancel()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.TranscriptUpdate:
		return m.Type, true
	case protocol.StatusEvent:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}

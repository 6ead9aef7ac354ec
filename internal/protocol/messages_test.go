package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ent0n29/pagechat/internal/transcript"
)

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","session_id":"s1","action":" Cancel ","reason":"stop_button","ts_ms":456}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.SessionID != "s1" || control.Action != ActionCancel {
		t.Fatalf("unexpected client control: %+v", control)
	}
	if control.TSMs != 456 {
		t.Fatalf("TSMs = %d, want %d", control.TSMs, 456)
	}
	if control.Reason != "stop_button" {
		t.Fatalf("Reason = %q, want %q", control.Reason, "stop_button")
	}
}

func TestParseClientMessageRejectsInvalidControl(t *testing.T) {
	cases := []string{
		`{"type":"client_control","action":"cancel"}`,
		`{"type":"client_control","session_id":"s1"}`,
		`{"type":"client_control","session_id":"s1","action":"summarize"}`,
		`not json`,
	}
	for _, raw := range cases {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%s) expected error", raw)
		}
	}
}

func TestTranscriptUpdateWireFormat(t *testing.T) {
	msg := TranscriptUpdate{
		Type:      TypeTranscriptUpdate,
		SessionID: "s1",
		Seq:       3,
		PageID:    "https://example.com/a",
		Transcript: transcript.Transcript{
			transcript.AssistantTurn{Content: "Summary", Model: "llama3", DurationSeconds: 2},
			transcript.UserTurn{Content: "Why?"},
		},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `"transcript":[{"role":"assistant","content":"Summary","model":"llama3","duration":2},{"role":"user","content":"Why?"}]`
	if !strings.Contains(string(raw), want) {
		t.Fatalf("json = %s, want it to contain %s", raw, want)
	}
	if !strings.HasPrefix(string(raw), `{"type":"transcript_update","session_id":"s1","seq":3`) {
		t.Fatalf("json = %s", raw)
	}
}

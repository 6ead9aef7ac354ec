package transcript

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRenderUsesRolePrefixes(t *testing.T) {
	tr := Transcript{
		AssistantTurn{Content: "S", Model: "m"},
		UserTurn{Content: "Q1"},
		AssistantTurn{Content: "A1"},
	}
	got := tr.Render()
	want := "Assistant: S\nUser: Q1\nAssistant: A1"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestValidateAlternation(t *testing.T) {
	tests := []struct {
		name    string
		tr      Transcript
		wantErr bool
	}{
		{name: "empty", tr: Transcript{}},
		{name: "summary only", tr: Transcript{AssistantTurn{Content: "S"}}},
		{name: "question first", tr: Transcript{UserTurn{Content: "Q"}, AssistantTurn{Content: "A"}}},
		{name: "summary then qa", tr: Transcript{AssistantTurn{Content: "S"}, UserTurn{Content: "Q"}, AssistantTurn{Content: "A"}}},
		{name: "two users", tr: Transcript{UserTurn{Content: "Q"}, UserTurn{Content: "Q2"}}, wantErr: true},
		{name: "two assistants", tr: Transcript{AssistantTurn{Content: "S"}, AssistantTurn{Content: "S2"}}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tr.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrBadAlternation) {
					t.Fatalf("Validate() error = %v, want ErrBadAlternation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}

func TestJSONWireFormat(t *testing.T) {
	tr := Transcript{
		AssistantTurn{Content: "Key point.", Model: "llama3", DurationSeconds: 1.5},
		UserTurn{Content: "Why?"},
	}
	raw, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[{"role":"assistant","content":"Key point.","model":"llama3","duration":1.5},{"role":"user","content":"Why?"}]`
	if string(raw) != want {
		t.Fatalf("Marshal() = %s, want %s", raw, want)
	}

	back, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(back) != 2 {
		t.Fatalf("len(Decode()) = %d, want 2", len(back))
	}
	a, ok := back[0].(AssistantTurn)
	if !ok || a.Model != "llama3" || a.DurationSeconds != 1.5 {
		t.Fatalf("back[0] = %#v, want assistant turn with metadata", back[0])
	}
	if _, ok := back[1].(UserTurn); !ok {
		t.Fatalf("back[1] = %#v, want user turn", back[1])
	}
}

func TestDecodeRejectsUnknownRole(t *testing.T) {
	_, err := Decode([]byte(`[{"role":"system","content":"x"}]`))
	if err == nil || !strings.Contains(err.Error(), "unknown role") {
		t.Fatalf("Decode() error = %v, want unknown role", err)
	}
}

func TestDecodeEmpty(t *testing.T) {
	tr, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil) error = %v", err)
	}
	if len(tr) != 0 {
		t.Fatalf("len = %d, want 0", len(tr))
	}
}

func TestTruncateDoesNotAliasAppends(t *testing.T) {
	tr := Transcript{AssistantTurn{Content: "S"}, UserTurn{Content: "Q"}, AssistantTurn{Content: "A"}}
	head := tr.Truncate(1)
	head = append(head, UserTurn{Content: "other"})
	if tr[1].Text() != "Q" {
		t.Fatalf("original transcript mutated: %q", tr[1].Text())
	}
	if len(head) != 2 {
		t.Fatalf("len(head) = %d, want 2", len(head))
	}
	if got := tr.Truncate(99); len(got) != 3 {
		t.Fatalf("Truncate(99) len = %d, want 3", len(got))
	}
}

func TestLastAssistantAndSummary(t *testing.T) {
	tr := Transcript{AssistantTurn{Content: "S"}, UserTurn{Content: "Q"}}
	if got := tr.LastAssistant(); got != 0 {
		t.Fatalf("LastAssistant() = %d, want 0", got)
	}
	if !tr.IsSummary(0) || tr.IsSummary(1) {
		t.Fatalf("IsSummary mismatch")
	}
	if (Transcript{UserTurn{Content: "Q"}}).IsSummary(0) {
		t.Fatalf("user turn should not be a summary")
	}
}

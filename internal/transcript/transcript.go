package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one transcript entry. It is either a UserTurn or an AssistantTurn.
type Turn interface {
	Role() Role
	Text() string
	isTurn()
}

// UserTurn is a question typed by the user.
type UserTurn struct {
	Content string
}

func (UserTurn) Role() Role { return RoleUser }
func (t UserTurn) Text() string { return t.Content }
func (UserTurn) isTurn() {}
func (t UserTurn) String() string { return "User: " + t.Content }

// AssistantTurn is a generated answer or summary.
type AssistantTurn struct {
	Content string
	Model   string
	// DurationSeconds is the wall-clock time the generation took.
	DurationSeconds float64
}

func (AssistantTurn) Role() Role { return RoleAssistant }
func (t AssistantTurn) Text() string { return t.Content }
func (AssistantTurn) isTurn() {}
func (t AssistantTurn) String() string { return "Assistant: " + t.Content }

// Transcript is the ordered conversation for one page.
type Transcript []Turn

var ErrBadAlternation = errors.New("transcript turns do not alternate")

// Clone returns a copy that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// Truncate returns the first n turns. n is clamped to [0, len(t)].
func (t Transcript) Truncate(n int) Transcript {
	if n < 0 {
		n = 0
	}
	if n > len(t) {
		n = len(t)
	}
	return t[:n:n]
}

// IsSummary reports whether the turn at i is the leading summary.
func (t Transcript) IsSummary(i int) bool {
	return i == 0 && len(t) > 0 && t[0].Role() == RoleAssistant
}

// LastAssistant returns the index of the most recent assistant turn, or -1.
func (t Transcript) LastAssistant() int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role() == RoleAssistant {
			return i
		}
	}
	return -1
}

// Render serializes the turns as "User: ..." / "Assistant: ..." lines.
func (t Transcript) Render() string {
	var b strings.Builder
	for i, turn := range t {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch turn.Role() {
		case RoleUser:
			b.WriteString("User: ")
		default:
			b.WriteString("Assistant: ")
		}
		b.WriteString(turn.Text())
	}
	return b.String()
}

// Validate checks that turns alternate, allowing a single unpaired
// assistant turn at position 0.
func (t Transcript) Validate() error {
	for i, turn := range t {
		if turn == nil {
			return fmt.Errorf("turn %d is nil", i)
		}
		if i == 0 {
			continue
		}
		if turn.Role() == t[i-1].Role() {
			return fmt.Errorf("%w: turns %d and %d are both %s", ErrBadAlternation, i-1, i, turn.Role())
		}
	}
	return nil
}

type turnRecord struct {
	Role     Role     `json:"role"`
	Content  string   `json:"content"`
	Model    string   `json:"model,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

func (t Transcript) MarshalJSON() ([]byte, error) {
	records := make([]turnRecord, 0, len(t))
	for i, turn := range t {
		switch v := turn.(type) {
		case UserTurn:
			records = append(records, turnRecord{Role: RoleUser, Content: v.Content})
		case AssistantTurn:
			d := v.DurationSeconds
			records = append(records, turnRecord{Role: RoleAssistant, Content: v.Content, Model: v.Model, Duration: &d})
		default:
			return nil, fmt.Errorf("turn %d: unsupported type %T", i, turn)
		}
	}
	return json.Marshal(records)
}

func (t *Transcript) UnmarshalJSON(data []byte) error {
	var records []turnRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	out := make(Transcript, 0, len(records))
	for i, r := range records {
		switch r.Role {
		case RoleUser:
			out = append(out, UserTurn{Content: r.Content})
		case RoleAssistant:
			turn := AssistantTurn{Content: r.Content, Model: r.Model}
			if r.Duration != nil {
				turn.DurationSeconds = *r.Duration
			}
			out = append(out, turn)
		default:
			return fmt.Errorf("turn %d: unknown role %q", i, r.Role)
		}
	}
	*t = out
	return nil
}

// Decode parses a stored transcript value. Empty input yields an empty transcript.
func Decode(data []byte) (Transcript, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Transcript{}, nil
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return t, nil
}

package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/ent0n29/pagechat/internal/transcript"
)

// TerminalRenderer renders markdown with ANSI styling for a terminal.
type TerminalRenderer struct {
	tr *glamour.TermRenderer
}

// NewTerminalRenderer builds a renderer wrapping at width. An empty style
// picks light or dark from the terminal background; "notty" disables colour.
func NewTerminalRenderer(width int, style string) (*TerminalRenderer, error) {
	if width <= 0 {
		width = 80
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("create terminal renderer: %w", err)
	}
	return &TerminalRenderer{tr: tr}, nil
}

func (r *TerminalRenderer) Markdown(src string) (string, error) {
	out, err := r.tr.Render(src)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

// Turn renders a single transcript entry with its heading.
func (r *TerminalRenderer) Turn(t transcript.Transcript, i int) (string, error) {
	if i < 0 || i >= len(t) {
		return "", fmt.Errorf("no turn at index %d", i)
	}
	switch v := t[i].(type) {
	case transcript.UserTurn:
		return fmt.Sprintf("[%d] You\n%s\n", i, indent(v.Content)), nil
	case transcript.AssistantTurn:
		label := "Assistant"
		if t.IsSummary(i) {
			label = "Summary"
		}
		body, err := r.Markdown(v.Content)
		if err != nil {
			return "", err
		}
		head := fmt.Sprintf("[%d] %s", i, label)
		if meta := Meta(v); meta != "" {
			head += " (" + meta + ")"
		}
		return head + "\n" + body, nil
	default:
		return "", fmt.Errorf("turn %d: unsupported type %T", i, t[i])
	}
}

// Transcript renders every turn in order.
func (r *TerminalRenderer) Transcript(t transcript.Transcript) (string, error) {
	var b strings.Builder
	for i := range t {
		s, err := r.Turn(t, i)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

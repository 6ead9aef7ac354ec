package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/ent0n29/pagechat/internal/transcript"
)

// HTMLRenderer turns assistant markdown into sanitized HTML. Safe for
// concurrent use.
type HTMLRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

func (r *HTMLRenderer) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// Transcript renders every turn as a labelled block. User text is escaped,
// never interpreted as markdown.
func (r *HTMLRenderer) Transcript(t transcript.Transcript) (string, error) {
	var b strings.Builder
	for i, turn := range t {
		switch v := turn.(type) {
		case transcript.UserTurn:
			fmt.Fprintf(&b, `<div class="turn user"><div class="label">You</div><div class="body">%s</div></div>`,
				strings.ReplaceAll(html.EscapeString(v.Content), "\n", "<br>"))
		case transcript.AssistantTurn:
			body, err := r.Markdown(v.Content)
			if err != nil {
				return "", err
			}
			label := "Assistant"
			if t.IsSummary(i) {
				label = "Summary"
			}
			fmt.Fprintf(&b, `<div class="turn assistant" data-index="%d"><div class="label">%s</div><div class="body">%s</div>`, i, label, body)
			if meta := Meta(v); meta != "" {
				fmt.Fprintf(&b, `<div class="meta">%s</div>`, html.EscapeString(meta))
			}
			b.WriteString(`</div>`)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Meta is the "model · 2.4s" caption shown under an assistant turn.
func Meta(t transcript.AssistantTurn) string {
	var parts []string
	if t.Model != "" {
		parts = append(parts, t.Model)
	}
	if t.DurationSeconds > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", t.DurationSeconds))
	}
	return strings.Join(parts, " · ")
}

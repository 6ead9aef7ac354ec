package inference

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

// DefaultSpeechFilename is used when the speech endpoint suggests none.
const DefaultSpeechFilename = "speech.mp3"

var (
	thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
	// RE2 has no backreferences, so each quote style gets its own branch.
	filenamePattern = regexp.MustCompile(`filename[^;=\n]*=(?:"([^"]*)"|'([^']*)'|([^;\n]*))`)

	speechURLPattern          = regexp.MustCompile(`https?://\S+`)
	speechFencedCodePattern   = regexp.MustCompile("(?s)```.*?```")
	speechInlineCodePattern   = regexp.MustCompile("`[^`]*`")
	speechMarkdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
)

// CleanResponse removes <think>...</think> reasoning spans and trims the result.
func CleanResponse(raw string) string {
	return strings.TrimSpace(thinkBlockPattern.ReplaceAllString(raw, ""))
}

// ParseFilename extracts the filename from a Content-Disposition header.
func ParseFilename(contentDisposition string) string {
	m := filenamePattern.FindStringSubmatch(contentDisposition)
	if m == nil {
		return DefaultSpeechFilename
	}
	name := m[1] + m[2] + m[3]
	name = strings.TrimSpace(strings.NewReplacer(`"`, "", `'`, "").Replace(name))
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return DefaultSpeechFilename
	}
	return name
}

// SpeechText removes markup and symbol noise so the text reads naturally
// when spoken.
func SpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speechFencedCodePattern.ReplaceAllString(raw, " ")
	raw = speechInlineCodePattern.ReplaceAllString(raw, " ")
	raw = speechMarkdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = speechURLPattern.ReplaceAllString(raw, " ")

	raw = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"\\", " ",
		"|", " ",
		"#", " ",
		"~", " ",
		"<", " ",
		">", " ",
	).Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	var last rune

	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case r == '\n':
			// Line breaks in bullet lists become sentence pauses.
			if last != 0 && !strings.ContainsRune(".!?:;", last) {
				trimmed := strings.TrimRight(b.String(), " ")
				b.Reset()
				b.WriteString(trimmed)
				b.WriteByte('.')
				last = '.'
				prevSpace = false
			}
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			continue
		case isSpeechSafePunctuation(r):
			b.WriteRune(r)
			prevSpace = false
			last = r
		case unicode.IsPunct(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
			last = r
		}
	}

	return strings.TrimSpace(b.String())
}

func isSpeechSafePunctuation(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')', '/':
		return true
	default:
		return false
	}
}

package content

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// minMainContentChars is the trimmed length below which a main-content
// region is considered too thin and the full body is preferred.
const minMainContentChars = 50

// mainContentSelectors are tried in order; the first match wins.
var mainContentSelectors = []string{
	"main",
	"article",
	`[role="main"]`,
	"#content",
	"#main-content",
	"#main",
	".main-content",
	".post-content",
	".article-content",
	".entry-content",
	".content",
}

var embeddedPDFSelectors = []string{
	`embed[type="application/pdf"]`,
	`object[type="application/pdf"]`,
	`embed[src$=".pdf"]`,
	`iframe[src$=".pdf"]`,
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"head":     true,
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true,
}

// ExtractHTML returns the readable text of an HTML document, preferring its
// main content region.
func ExtractHTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Selection
	}
	bodyText := innerText(body)

	text := bodyText
	for _, sel := range mainContentSelectors {
		region := doc.Find(sel).First()
		if region.Length() == 0 {
			continue
		}
		text = innerText(region)
		break
	}
	if len(strings.TrimSpace(text)) < minMainContentChars && len(bodyText) > len(text) {
		text = bodyText
	}

	text = strings.TrimSpace(text)
	if text == "" {
		for _, sel := range embeddedPDFSelectors {
			if doc.Find(sel).Length() > 0 {
				return "", ErrEmbeddedPDFBlocked
			}
		}
		return "", ErrNoContent
	}
	return text, nil
}

func innerText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		walkText(&b, n)
	}
	return normalizeText(b.String())
}

func walkText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
	}
	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(b, c)
	}
	if block {
		b.WriteByte('\n')
	} else if n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th") {
		b.WriteByte('\t')
	}
}

// normalizeText collapses horizontal whitespace, trims lines and keeps at
// most one blank line between paragraphs.
func normalizeText(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

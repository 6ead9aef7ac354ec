package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakePDF struct {
	text string
	err  error
	hits int
}

func (f *fakePDF) ExtractText(_ []byte) (string, error) {
	f.hits++
	return f.text, f.err
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    PageID
		wantErr bool
	}{
		{in: "https://Example.com/a#section", want: "https://example.com/a"},
		{in: "http://example.com/a?q=1", want: "http://example.com/a?q=1"},
		{in: "file:///tmp/doc.pdf", want: "file:///tmp/doc.pdf"},
		{in: "chrome://extensions", wantErr: true},
		{in: "about:blank", wantErr: true},
		{in: "", wantErr: true},
		{in: "https:///nohost", wantErr: true},
	}
	for _, tc := range tests {
		got, _, err := NormalizeURL(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidPage) {
				t.Fatalf("NormalizeURL(%q) error = %v, want ErrInvalidPage", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeURL(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractHTMLPrefersMainRegion(t *testing.T) {
	doc := `<html><head><title>t</title><script>var x = 1;</script></head><body>
<nav>Home | About | Contact</nav>
<main><h1>Title</h1><p>This paragraph is the real article body and it is long enough to count.</p></main>
<footer>Copyright</footer></body></html>`
	text, err := ExtractHTML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ExtractHTML() error = %v", err)
	}
	if strings.Contains(text, "Home | About") || strings.Contains(text, "Copyright") {
		t.Fatalf("text includes chrome outside main: %q", text)
	}
	if !strings.HasPrefix(text, "Title\n") {
		t.Fatalf("text = %q, want heading on its own line", text)
	}
}

func TestExtractHTMLFallsBackWhenMainIsThin(t *testing.T) {
	doc := `<html><body><article>Short.</article>
<div><p>The body has much more text than the tiny article element, so it should be used instead.</p></div>
<script>ignored()</script></body></html>`
	text, err := ExtractHTML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ExtractHTML() error = %v", err)
	}
	if !strings.Contains(text, "much more text") {
		t.Fatalf("text = %q, want body fallback", text)
	}
	if strings.Contains(text, "ignored()") {
		t.Fatalf("script content leaked: %q", text)
	}
}

func TestExtractHTMLEmbeddedPDFViewer(t *testing.T) {
	doc := `<html><body><embed type="application/pdf" src="about:blank"></body></html>`
	_, err := ExtractHTML(strings.NewReader(doc))
	if !errors.Is(err, ErrEmbeddedPDFBlocked) {
		t.Fatalf("ExtractHTML() error = %v, want ErrEmbeddedPDFBlocked", err)
	}
}

func TestExtractHTMLEmpty(t *testing.T) {
	_, err := ExtractHTML(strings.NewReader(`<html><body>   </body></html>`))
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("ExtractHTML() error = %v, want ErrNoContent", err)
	}
}

func TestFetcherHTML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><p>Hello world</p></body></html>`))
	}))
	defer ts.Close()

	f := NewFetcher(FetcherConfig{})
	page, err := f.Source(ts.URL + "/a#frag").Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if page.ID != PageID(ts.URL+"/a") {
		t.Fatalf("page.ID = %q, want %q", page.ID, ts.URL+"/a")
	}
	if page.Kind != KindHTML || page.Text != "Hello world" {
		t.Fatalf("page = %+v, want html Hello world", page)
	}
}

func TestFetcherPDFByContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("binary"))
	}))
	defer ts.Close()

	pdf := &fakePDF{text: "page one\n\npage two"}
	f := NewFetcher(FetcherConfig{PDF: pdf})
	page, err := f.Fetch(context.Background(), ts.URL+"/download")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if page.Kind != KindPDF || page.Text != "page one\n\npage two" || pdf.hits != 1 {
		t.Fatalf("page = %+v hits = %d", page, pdf.hits)
	}
}

func TestFetcherPDFWithoutExtractor(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.7 ..."))
	}))
	defer ts.Close()

	f := NewFetcher(FetcherConfig{})
	_, err := f.Fetch(context.Background(), ts.URL+"/paper.pdf")
	var pdfErr *PDFParseError
	if !errors.As(err, &pdfErr) {
		t.Fatalf("Fetch() error = %v, want PDFParseError", err)
	}
}

func TestFetcherPDFParserFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.7 ..."))
	}))
	defer ts.Close()

	f := NewFetcher(FetcherConfig{PDF: &fakePDF{err: errors.New("corrupt xref")}})
	_, err := f.Fetch(context.Background(), ts.URL+"/paper.pdf")
	var pdfErr *PDFParseError
	if !errors.As(err, &pdfErr) || !strings.Contains(err.Error(), "corrupt xref") {
		t.Fatalf("Fetch() error = %v, want wrapped parser error", err)
	}
}

func TestFetcherHTTPStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := NewFetcher(FetcherConfig{}).Fetch(context.Background(), ts.URL)
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("Fetch() error = %v, want ExtractionError", err)
	}
}

func TestFetcherFileURL(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "page.html")
	if err := os.WriteFile(p, []byte(`<body><p>Local file text</p></body>`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	page, err := NewFetcher(FetcherConfig{}).Fetch(context.Background(), "file://"+filepath.ToSlash(p))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if page.Text != "Local file text" {
		t.Fatalf("page.Text = %q", page.Text)
	}
}

func TestFetcherRejectsUnsupportedScheme(t *testing.T) {
	_, err := NewFetcher(FetcherConfig{}).Fetch(context.Background(), "chrome://newtab")
	if !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("Fetch() error = %v, want ErrInvalidPage", err)
	}
}

func TestFetcherMaxBytes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer ts.Close()

	_, err := NewFetcher(FetcherConfig{MaxBytes: 16}).Fetch(context.Background(), ts.URL)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("Fetch() error = %v, want size error", err)
	}
}

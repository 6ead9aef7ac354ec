package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxBytes     = 32 << 20
	userAgent           = "pagechat/1.0 (+https://github.com/ent0n29/pagechat)"
)

// FetcherConfig controls page downloads.
type FetcherConfig struct {
	Timeout  time.Duration
	MaxBytes int64
	PDF      PDFExtractor
	Logger   *slog.Logger
}

// Fetcher downloads pages over http(s) or reads them from file URLs and
// extracts their text.
type Fetcher struct {
	client   *http.Client
	pdf      PDFExtractor
	maxBytes int64
	logger   *slog.Logger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		pdf:      cfg.PDF,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Source binds the fetcher to one page URL.
func (f *Fetcher) Source(rawURL string) Source {
	return &pageSource{fetcher: f, rawURL: rawURL}
}

type pageSource struct {
	fetcher *Fetcher
	rawURL  string
}

func (s *pageSource) Acquire(ctx context.Context) (Page, error) {
	return s.fetcher.Fetch(ctx, s.rawURL)
}

// NormalizeURL validates the scheme and returns the canonical page identifier.
// Scheme and host are lower-cased and the fragment is dropped.
func NormalizeURL(rawURL string) (PageID, *url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", nil, fmt.Errorf("%w: empty url", ErrInvalidPage)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return "", nil, fmt.Errorf("%w: missing host in %q", ErrInvalidPage, rawURL)
		}
	case "file":
		if u.Path == "" {
			return "", nil, fmt.Errorf("%w: missing path in %q", ErrInvalidPage, rawURL)
		}
	default:
		return "", nil, fmt.Errorf("%w: scheme %q is not http(s) or file", ErrInvalidPage, u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return PageID(u.String()), u, nil
}

// Fetch acquires the page at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	id, u, err := NormalizeURL(rawURL)
	if err != nil {
		return Page{}, err
	}

	var (
		body        []byte
		contentType string
	)
	if u.Scheme == "file" {
		body, err = f.readFile(u.Path)
	} else {
		body, contentType, err = f.download(ctx, u.String())
	}
	if err != nil {
		return Page{}, &ExtractionError{URL: string(id), Err: err}
	}

	if isPDF(u, contentType, body) {
		text, err := f.extractPDF(body)
		if err != nil {
			return Page{}, &PDFParseError{URL: string(id), Err: err}
		}
		if strings.TrimSpace(text) == "" {
			return Page{}, &ExtractionError{URL: string(id), Err: ErrNoContent}
		}
		f.logger.Debug("pdf extracted", "url", string(id), "chars", len(text))
		return Page{ID: id, Kind: KindPDF, Text: text}, nil
	}

	text, err := ExtractHTML(bytes.NewReader(body))
	if err != nil {
		return Page{}, &ExtractionError{URL: string(id), Err: err}
	}
	f.logger.Debug("html extracted", "url", string(id), "chars", len(text))
	return Page{ID: id, Kind: KindHTML, Text: text}, nil
}

func (f *Fetcher) download(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, "", fmt.Errorf("page http status %d", res.StatusCode)
	}
	body, err := f.readLimited(res.Body)
	if err != nil {
		return nil, "", err
	}
	return body, res.Header.Get("Content-Type"), nil
}

func (f *Fetcher) readFile(p string) ([]byte, error) {
	file, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return f.readLimited(file)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("page exceeds %d bytes", f.maxBytes)
	}
	return body, nil
}

func (f *Fetcher) extractPDF(body []byte) (string, error) {
	if f.pdf == nil {
		return "", errors.New("pdf extraction unavailable")
	}
	return f.pdf.ExtractText(body)
}

func isPDF(u *url.URL, contentType string, body []byte) bool {
	if strings.EqualFold(path.Ext(u.Path), ".pdf") {
		return true
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "application/pdf" {
		return true
	}
	return bytes.HasPrefix(body, []byte("%PDF-"))
}

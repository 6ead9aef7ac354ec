package content

import (
	"context"
	"errors"
	"fmt"
)

// PageID is the normalized URL a transcript is keyed by.
type PageID string

func (id PageID) String() string { return string(id) }

// Kind is the detected document type.
type Kind string

const (
	KindHTML Kind = "html"
	KindPDF  Kind = "pdf"
)

// Page is the result of a successful acquisition.
type Page struct {
	ID   PageID
	Kind Kind
	Text string
}

// Source acquires the text of the active page.
type Source interface {
	Acquire(ctx context.Context) (Page, error)
}

var (
	ErrInvalidPage = errors.New("unsupported page")
	// ErrEmbeddedPDFBlocked marks a page that only hosts a PDF viewer whose
	// document cannot be read from the embedding page.
	ErrEmbeddedPDFBlocked = errors.New("embedded pdf viewer blocks content access")
	ErrNoContent          = errors.New("no content returned")
)

// ExtractionError reports that the page produced no usable text.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// PDFParseError reports that a PDF document could not be turned into text.
type PDFParseError struct {
	URL string
	Err error
}

func (e *PDFParseError) Error() string {
	return fmt.Sprintf("parse pdf %s: %v", e.URL, e.Err)
}

func (e *PDFParseError) Unwrap() error {
	return e.Err
}

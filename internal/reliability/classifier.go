package reliability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ent0n29/pagechat/internal/content"
	"github.com/ent0n29/pagechat/internal/conversation"
	"github.com/ent0n29/pagechat/internal/inference"
	"github.com/ent0n29/pagechat/internal/session"
)

// Classification is the user-facing view of an operation failure.
type Classification struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	// Abort marks a user-requested cancellation. It is informational, not
	// a failure.
	Abort     bool `json:"abort,omitempty"`
	Retryable bool `json:"retryable"`
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps err to a stable code, message and HTTP status.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Code: "ok", HTTPStatus: http.StatusOK}
	}

	var (
		httpErr    *inference.HTTPError
		netErr     *inference.NetworkError
		provErr    *inference.ProviderError
		pdfErr     *content.PDFParseError
		extractErr *content.ExtractionError
		regenErr   *conversation.RegenerationError
	)

	switch {
	case conversation.IsAbort(err):
		return Classification{Code: "aborted", Message: conversation.StatusStopped, HTTPStatus: http.StatusConflict, Abort: true}
	case errors.Is(err, context.DeadlineExceeded):
		return Classification{Code: "timeout", Message: "The request timed out.", HTTPStatus: http.StatusGatewayTimeout, Retryable: true}
	case errors.Is(err, content.ErrInvalidPage):
		return Classification{Code: "invalid_page", Message: "This page cannot be read: " + err.Error(), HTTPStatus: http.StatusUnprocessableEntity}
	case errors.Is(err, content.ErrEmbeddedPDFBlocked):
		return Classification{
			Code:       "embedded_pdf_blocked",
			Message:    "The page embeds a PDF viewer whose content cannot be read. Open the PDF directly and try again.",
			HTTPStatus: http.StatusUnprocessableEntity,
			Retryable:  true,
		}
	case errors.As(err, &pdfErr):
		return Classification{Code: "pdf_parse_failed", Message: "The PDF could not be parsed: " + pdfErr.Error(), HTTPStatus: http.StatusUnprocessableEntity, Retryable: true}
	case errors.As(err, &extractErr):
		return Classification{Code: "extraction_failed", Message: "An error occurred while fetching the page content: " + extractErr.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true}
	case errors.As(err, &httpErr):
		return Classification{
			Code:       "upstream_http_error",
			Message:    fmt.Sprintf("The endpoint returned HTTP %d.", httpErr.Status),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  IsRetryableHTTPStatus(httpErr.Status),
		}
	case errors.As(err, &provErr):
		return Classification{Code: "provider_error", Message: "The model endpoint reported an error: " + provErr.Detail, HTTPStatus: http.StatusBadGateway}
	case errors.As(err, &netErr):
		return Classification{Code: "network_error", Message: "Could not reach the endpoint: " + netErr.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true}
	case errors.As(err, &regenErr):
		return Classification{Code: "regeneration_invalid", Message: regenErr.Error(), HTTPStatus: http.StatusConflict}
	case errors.Is(err, conversation.ErrEmptyQuestion):
		return Classification{Code: "empty_question", Message: "Type a question first.", HTTPStatus: http.StatusBadRequest}
	case errors.Is(err, conversation.ErrNoPage):
		return Classification{Code: "no_page", Message: "Fetch the page content first.", HTTPStatus: http.StatusConflict}
	case errors.Is(err, conversation.ErrNotSpeakable):
		return Classification{Code: "not_speakable", Message: err.Error(), HTTPStatus: http.StatusBadRequest}
	case errors.Is(err, conversation.ErrClosed):
		return Classification{Code: "session_closed", Message: "The session has ended.", HTTPStatus: http.StatusGone}
	case errors.Is(err, session.ErrNotFound):
		return Classification{Code: "session_not_found", Message: "Session not found.", HTTPStatus: http.StatusNotFound}
	default:
		return Classification{Code: "internal_error", Message: err.Error(), HTTPStatus: http.StatusInternalServerError}
	}
}

package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/pagechat/internal/inference"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoPage        = errors.New("page content has not been fetched")
	ErrClosed        = errors.New("session is closed")
	ErrNotSpeakable  = errors.New("turn cannot be spoken")
)

// RegenerationError reports a regenerate request the transcript cannot
// satisfy. The transcript stays truncated at Index.
type RegenerationError struct {
	Index  int
	Reason string
}

func (e *RegenerationError) Error() string {
	return fmt.Sprintf("cannot regenerate turn %d: %s", e.Index, e.Reason)
}

// IsAbort reports whether err is a user-requested cancellation.
func IsAbort(err error) bool {
	return errors.Is(err, inference.ErrAborted) || errors.Is(err, context.Canceled)
}

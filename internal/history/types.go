package history

import (
	"context"

	"github.com/ent0n29/pagechat/internal/transcript"
)

// Store persists one transcript per page identifier. Keys are compared by
// exact string equality.
type Store interface {
	// Get returns the stored transcript and whether one exists.
	Get(ctx context.Context, pageID string) (transcript.Transcript, bool, error)
	Set(ctx context.Context, pageID string, t transcript.Transcript) error
	Remove(ctx context.Context, pageID string) error
	Close() error
}

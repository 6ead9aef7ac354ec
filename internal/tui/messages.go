package tui

import "github.com/ent0n29/pagechat/internal/conversation"

// SnapshotMsg carries a conversation change.
type SnapshotMsg struct {
	Snapshot conversation.Snapshot
}

// OpDoneMsg reports that a conversation operation returned.
type OpDoneMsg struct {
	Op  conversation.Op
	Err error
}

// SpeechSavedMsg reports where synthesized audio was written.
type SpeechSavedMsg struct {
	Path string
	Err  error
}

// ClearTransientMsg clears a transient notice or error after a timeout.
type ClearTransientMsg struct{}

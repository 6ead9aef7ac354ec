package session

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ent0n29/pagechat/internal/conversation"
)

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	URL string `json:"url"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, validation.Length(1, 8192)),
	)
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string             `json:"session_id"`
	URL             string             `json:"url"`
	Status          Status             `json:"status"`
	State           conversation.State `json:"state"`
	StartedAt       time.Time          `json:"started_at"`
	LastActivityAt  time.Time          `json:"last_activity_at"`
	InactivityTTLMS int64              `json:"inactivity_ttl_ms"`
}

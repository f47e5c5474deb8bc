// Package events defines the payloads published through the outbox.
package events

import "time"

// BackfillRequestedType is the outbox event type for BackfillRequested.
const BackfillRequestedType = "backfill.requested"

// BackfillRequested asks a worker to import a connection's history.
type BackfillRequested struct {
	UserID       string    `json:"user_id" validate:"required"`
	ConnectionID string    `json:"connection_id" validate:"required,uuid"`
	Reason       string    `json:"reason,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

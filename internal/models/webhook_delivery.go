package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookDelivery is one append-only audit entry covering a full dispatch
// attempt sequence (not a single HTTP attempt). A record is finalized exactly
// once; a re-dispatch appends a new record.
type WebhookDelivery struct {
	ID             uuid.UUID  `json:"id"`
	JobUUID        uuid.UUID  `json:"job_uuid"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"` // nil for legacy deliveries
	EventID        string     `json:"event_id"`
	EventType      string     `json:"event_type"`
	TargetURL      string     `json:"target_url"`
	Success        bool       `json:"success"`
	Attempts       int        `json:"attempts"`
	LastError      *string    `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

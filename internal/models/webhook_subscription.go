package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// WebhookSubscription is an agent's registration of interest in one or more
// event types at one URL, with a shared secret for signing. LastDeliveryOK is
// advisory health state: it surfaces unhealthy endpoints to the owning agent
// but never disables future delivery attempts.
type WebhookSubscription struct {
	ID             uuid.UUID `json:"id"`
	AgentID        uuid.UUID `json:"agent_id"`
	URL            string    `json:"url"`
	Secret         string    `json:"-"`
	EventTypes     []string  `json:"event_types"`
	Active         bool      `json:"active"`
	LastDeliveryOK bool      `json:"last_delivery_ok"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *WebhookSubscription) WantsEvent(eventType string) bool {
	return slices.Contains(s.EventTypes, eventType)
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Skill is a priced service offering tied to an agent. ServiceKey is the
// stable string key used for routing and in the legacy webhook payload.
type Skill struct {
	ID         uuid.UUID `json:"id"`
	AgentID    uuid.UUID `json:"agent_id"`
	ServiceKey string    `json:"service_key"`
	Title      string    `json:"title"`
	PriceUSD   float64   `json:"price_usd"`
	Active     bool      `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

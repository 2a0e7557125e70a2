package models

import (
	"time"

	"github.com/google/uuid"
)

type AccountStatusType string

const (
	AccountStatusActive    AccountStatusType = "ACTIVE"
	AccountStatusSuspended AccountStatusType = "SUSPENDED"
)

// Agent is a worker (human or automated) offering skills for pay.
// WebhookURL is the legacy single-endpoint notification target; agents are not
// required to register one.
type Agent struct {
	ID            uuid.UUID         `json:"id"`
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	PhoneNumber   string            `json:"phone_number"`
	WebhookURL    string            `json:"webhook_url,omitempty"`
	WalletAddress string            `json:"wallet_address"`
	AccountStatus AccountStatusType `json:"account_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

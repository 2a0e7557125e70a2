package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatusType string

const (
	JobStatusPending    JobStatusType = "PENDING"
	JobStatusPaid       JobStatusType = "PAID"
	JobStatusInProgress JobStatusType = "IN_PROGRESS"
	JobStatusDelivered  JobStatusType = "DELIVERED"
	JobStatusCompleted  JobStatusType = "COMPLETED"
	JobStatusDisputed   JobStatusType = "DISPUTED"
	JobStatusRefunded   JobStatusType = "REFUNDED"
)

// CompletionTriggerType records which path moved a job into a terminal state.
type CompletionTriggerType string

const (
	CompletionTriggerApproval        CompletionTriggerType = "approval"
	CompletionTriggerTimeout         CompletionTriggerType = "timeout"
	CompletionTriggerDisputeResolved CompletionTriggerType = "dispute_resolved"
)

// Job is one purchased instance of a skill. Rows are never deleted; jobs are
// retained for audit and reviews after reaching a terminal state.
type Job struct {
	Versioned

	// Internal numeric id; the UUID is the stable external identity.
	ID   int64     `json:"-"`
	UUID uuid.UUID `json:"uuid"`

	RequesterID uuid.UUID `json:"requester_id"`
	AgentID     uuid.UUID `json:"agent_id"`
	SkillID     uuid.UUID `json:"skill_id"`

	Status   JobStatusType   `json:"status"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	PriceUSD float64         `json:"price_usd"`

	PaymentTxHash *string `json:"payment_tx_hash,omitempty"`
	PayoutTxHash  *string `json:"payout_tx_hash,omitempty"`
	RefundTxHash  *string `json:"refund_tx_hash,omitempty"`

	DisputeReason     *string                `json:"dispute_reason,omitempty"`
	RevisionFeedback  *string                `json:"revision_feedback,omitempty"`
	CompletionTrigger *CompletionTriggerType `json:"completion_trigger,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (j *Job) GetID() string {
	return j.UUID.String()
}

// Terminal reports whether no further lifecycle transitions are allowed.
func (s JobStatusType) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusRefunded
}

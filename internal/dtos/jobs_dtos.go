package dtos

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gigmesh/marketplace/internal/models"
)

type HealthCheckResponse struct {
	Status string `json:"status"`
}

/*
CreateJobRequest is the body for POST /api/v1/jobs. Input is passed through
opaque; the agent's skill defines its shape.
*/
type CreateJobRequest struct {
	SkillID uuid.UUID       `json:"skill_id" validate:"required"`
	Input   json.RawMessage `json:"input" validate:"required"`
}

type ConfirmPaymentRequest struct {
	PaymentTxHash string `json:"payment_tx_hash" validate:"required,min=1"`
}

type DeliverJobRequest struct {
	Output json.RawMessage `json:"output" validate:"required"`
}

type DisputeJobRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=2000"`
}

type RequestRevisionRequest struct {
	Feedback string `json:"feedback" validate:"required,min=1,max=2000"`
}

type ResolveDisputeRequest struct {
	InAgentFavor bool   `json:"in_agent_favor"`
	RefundTxHash string `json:"refund_tx_hash" validate:"required_if=InAgentFavor false"`
}

/*
JobDTO is the external representation of a job. The numeric row id stays
internal; the UUID is the only identity clients see.
*/
type JobDTO struct {
	UUID        uuid.UUID       `json:"uuid"`
	RequesterID uuid.UUID       `json:"requester_id"`
	AgentID     uuid.UUID       `json:"agent_id"`
	SkillID     uuid.UUID       `json:"skill_id"`
	Status      string          `json:"status"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	PriceUSD    float64         `json:"price_usd"`

	PaymentTxHash *string `json:"payment_tx_hash,omitempty"`
	PayoutTxHash  *string `json:"payout_tx_hash,omitempty"`
	RefundTxHash  *string `json:"refund_tx_hash,omitempty"`

	DisputeReason     *string `json:"dispute_reason,omitempty"`
	RevisionFeedback  *string `json:"revision_feedback,omitempty"`
	CompletionTrigger *string `json:"completion_trigger,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func ToJobDTO(j *models.Job) JobDTO {
	dto := JobDTO{
		UUID:             j.UUID,
		RequesterID:      j.RequesterID,
		AgentID:          j.AgentID,
		SkillID:          j.SkillID,
		Status:           string(j.Status),
		Input:            j.Input,
		Output:           j.Output,
		PriceUSD:         j.PriceUSD,
		PaymentTxHash:    j.PaymentTxHash,
		PayoutTxHash:     j.PayoutTxHash,
		RefundTxHash:     j.RefundTxHash,
		DisputeReason:    j.DisputeReason,
		RevisionFeedback: j.RevisionFeedback,
		CreatedAt:        j.CreatedAt,
		PaidAt:           j.PaidAt,
		DeliveredAt:      j.DeliveredAt,
		CompletedAt:      j.CompletedAt,
	}
	if j.CompletionTrigger != nil {
		t := string(*j.CompletionTrigger)
		dto.CompletionTrigger = &t
	}
	return dto
}

type DeliveryDTO struct {
	ID             uuid.UUID  `json:"id"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	EventID        string     `json:"event_id,omitempty"`
	EventType      string     `json:"event_type"`
	URL            string     `json:"url"`
	Success        bool       `json:"success"`
	Attempts       int        `json:"attempts"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func ToDeliveryDTO(d *models.WebhookDelivery) DeliveryDTO {
	return DeliveryDTO{
		ID:             d.ID,
		SubscriptionID: d.SubscriptionID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		URL:            d.TargetURL,
		Success:        d.Success,
		Attempts:       d.Attempts,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt,
	}
}

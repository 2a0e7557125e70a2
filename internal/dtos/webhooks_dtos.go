package dtos

import (
	"time"

	"github.com/google/uuid"

	"github.com/gigmesh/marketplace/internal/models"
)

/*
CreateSubscriptionRequest registers a signed webhook subscription. The secret
is write-only: it is accepted here and never echoed back in any response.
*/
type CreateSubscriptionRequest struct {
	URL        string   `json:"url" validate:"required,url"`
	Secret     string   `json:"secret" validate:"required,min=16"`
	EventTypes []string `json:"event_types" validate:"required,min=1,dive,min=1"`
}

type UpdateSubscriptionRequest struct {
	URL        string   `json:"url" validate:"required,url"`
	EventTypes []string `json:"event_types" validate:"required,min=1,dive,min=1"`
}

type SetLegacyWebhookRequest struct {
	// Empty clears the registered URL.
	URL string `json:"url" validate:"omitempty,url"`
}

type SubscriptionDTO struct {
	ID             uuid.UUID `json:"id"`
	URL            string    `json:"url"`
	EventTypes     []string  `json:"event_types"`
	Active         bool      `json:"active"`
	LastDeliveryOK bool      `json:"last_delivery_ok"`
	CreatedAt      time.Time `json:"created_at"`
}

func ToSubscriptionDTO(s *models.WebhookSubscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:             s.ID,
		URL:            s.URL,
		EventTypes:     s.EventTypes,
		Active:         s.Active,
		LastDeliveryOK: s.LastDeliveryOK,
		CreatedAt:      s.CreatedAt,
	}
}

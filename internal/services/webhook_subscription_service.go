package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/gigmesh/marketplace/internal/constants"
	"github.com/gigmesh/marketplace/internal/models"
	"github.com/gigmesh/marketplace/internal/repositories"
	"github.com/gigmesh/marketplace/internal/utils"
	"github.com/gigmesh/marketplace/internal/webhooks"
)

// WebhookSubscriptionService manages an agent's signed webhook subscriptions
// and the legacy single registered URL.
type WebhookSubscriptionService struct {
	subRepo   repositories.WebhookSubscriptionRepository
	agentRepo repositories.AgentRepository
}

func NewWebhookSubscriptionService(
	subRepo repositories.WebhookSubscriptionRepository,
	agentRepo repositories.AgentRepository,
) *WebhookSubscriptionService {
	return &WebhookSubscriptionService{
		subRepo:   subRepo,
		agentRepo: agentRepo,
	}
}

// CreateSubscription registers a new subscription for the agent. The secret
// is stored server side and never returned after creation; callers must keep
// their own copy to verify signatures.
func (s *WebhookSubscriptionService) CreateSubscription(
	ctx context.Context,
	agentID uuid.UUID,
	url string,
	secret string,
	eventTypes []string,
) (*models.WebhookSubscription, error) {
	if len(secret) < constants.MinWebhookSecretLength {
		return nil, utils.ErrInvalidPayload
	}
	for _, et := range eventTypes {
		if !webhooks.KnownEventType(et) {
			return nil, utils.ErrInvalidPayload
		}
	}

	existing, err := s.subRepo.ListByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= constants.MaxSubscriptionsPerAgent {
		return nil, utils.ErrSubscriptionExists
	}

	sub := &models.WebhookSubscription{
		ID:             uuid.New(),
		AgentID:        agentID,
		URL:            url,
		Secret:         secret,
		EventTypes:     eventTypes,
		Active:         true,
		LastDeliveryOK: true,
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ListSubscriptions returns all of the agent's subscriptions, active or not.
func (s *WebhookSubscriptionService) ListSubscriptions(ctx context.Context, agentID uuid.UUID) ([]*models.WebhookSubscription, error) {
	return s.subRepo.ListByAgent(ctx, agentID)
}

// UpdateSubscription replaces the URL and event-type filter of one of the
// agent's subscriptions. The secret is immutable; rotate by recreating.
func (s *WebhookSubscriptionService) UpdateSubscription(
	ctx context.Context,
	agentID uuid.UUID,
	subID uuid.UUID,
	url string,
	eventTypes []string,
) (*models.WebhookSubscription, error) {
	sub, err := s.ownedSubscription(ctx, agentID, subID)
	if err != nil {
		return nil, err
	}
	for _, et := range eventTypes {
		if !webhooks.KnownEventType(et) {
			return nil, utils.ErrInvalidPayload
		}
	}

	sub.URL = url
	sub.EventTypes = eventTypes
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// DeactivateSubscription turns a subscription off without deleting its
// delivery history.
func (s *WebhookSubscriptionService) DeactivateSubscription(ctx context.Context, agentID uuid.UUID, subID uuid.UUID) error {
	if _, err := s.ownedSubscription(ctx, agentID, subID); err != nil {
		return err
	}
	return s.subRepo.SetActive(ctx, subID, false)
}

// SetLegacyWebhookURL sets or clears (empty string) the agent's single
// unsigned notification URL.
func (s *WebhookSubscriptionService) SetLegacyWebhookURL(ctx context.Context, agentID uuid.UUID, url string) error {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return err
	}
	if agent == nil {
		return utils.ErrAgentNotFound
	}
	return s.agentRepo.SetWebhookURL(ctx, agentID, url)
}

func (s *WebhookSubscriptionService) ownedSubscription(ctx context.Context, agentID uuid.UUID, subID uuid.UUID) (*models.WebhookSubscription, error) {
	sub, err := s.subRepo.GetByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.AgentID != agentID {
		return nil, utils.ErrSubscriptionLookup
	}
	return sub, nil
}

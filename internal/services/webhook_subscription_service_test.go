package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gigmesh/marketplace/internal/constants"
	"github.com/gigmesh/marketplace/internal/models"
	"github.com/gigmesh/marketplace/internal/utils"
	"github.com/gigmesh/marketplace/internal/webhooks"
)

// memSubscriptionRepo is the in-memory WebhookSubscriptionRepository used by
// the subscription service tests.
type memSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*models.WebhookSubscription
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{subs: make(map[uuid.UUID]*models.WebhookSubscription)}
}

func (r *memSubscriptionRepo) Create(ctx context.Context, sub *models.WebhookSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSubscriptionRepo) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, s := range r.subs {
		if s.AgentID == agentID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSubscriptionRepo) ListActiveByAgentAndEvent(ctx context.Context, agentID uuid.UUID, eventType string) ([]*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, s := range r.subs {
		if s.AgentID == agentID && s.Active && s.WantsEvent(eventType) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSubscriptionRepo) Update(ctx context.Context, sub *models.WebhookSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memSubscriptionRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		s.Active = active
	}
	return nil
}

func (r *memSubscriptionRepo) SetLastDeliveryOK(ctx context.Context, id uuid.UUID, ok bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, found := r.subs[id]; found {
		s.LastDeliveryOK = ok
	}
	return nil
}


func newSubscriptionService() (*WebhookSubscriptionService, *memSubscriptionRepo, *fakeAgentRepo, *models.Agent) {
	subRepo := newMemSubscriptionRepo()
	agentRepo := newFakeAgentRepo()
	agent := &models.Agent{ID: uuid.New(), Name: "Ada", Email: "ada@example.com"}
	agentRepo.add(agent)
	return NewWebhookSubscriptionService(subRepo, agentRepo), subRepo, agentRepo, agent
}

func TestCreateSubscription(t *testing.T) {
	svc, _, _, agent := newSubscriptionService()
	ctx := context.Background()

	sub, err := svc.CreateSubscription(ctx, agent.ID, "https://hooks.example.com/a", "0123456789abcdef", []string{webhooks.EventJobPaid, webhooks.EventJobDelivered})
	require.NoError(t, err)
	require.True(t, sub.Active)
	require.True(t, sub.LastDeliveryOK)
	require.True(t, sub.WantsEvent(webhooks.EventJobPaid))
	require.False(t, sub.WantsEvent(webhooks.EventJobDisputed))
}

func TestCreateSubscriptionRejectsShortSecret(t *testing.T) {
	svc, _, _, agent := newSubscriptionService()

	_, err := svc.CreateSubscription(context.Background(), agent.ID, "https://hooks.example.com/a", "too-short", []string{webhooks.EventJobPaid})
	require.ErrorIs(t, err, utils.ErrInvalidPayload)
}

func TestCreateSubscriptionRejectsUnknownEventType(t *testing.T) {
	svc, _, _, agent := newSubscriptionService()

	_, err := svc.CreateSubscription(context.Background(), agent.ID, "https://hooks.example.com/a", "0123456789abcdef", []string{"job.paid", "job.exploded"})
	require.ErrorIs(t, err, utils.ErrInvalidPayload)
}

func TestCreateSubscriptionEnforcesLimit(t *testing.T) {
	svc, _, _, agent := newSubscriptionService()
	ctx := context.Background()

	for i := 0; i < constants.MaxSubscriptionsPerAgent; i++ {
		_, err := svc.CreateSubscription(ctx, agent.ID, fmt.Sprintf("https://hooks.example.com/%d", i), "0123456789abcdef", []string{webhooks.EventJobPaid})
		require.NoError(t, err)
	}
	_, err := svc.CreateSubscription(ctx, agent.ID, "https://hooks.example.com/one-too-many", "0123456789abcdef", []string{webhooks.EventJobPaid})
	require.ErrorIs(t, err, utils.ErrSubscriptionExists)
}

func TestUpdateSubscriptionOwnership(t *testing.T) {
	svc, _, _, agent := newSubscriptionService()
	ctx := context.Background()

	sub, err := svc.CreateSubscription(ctx, agent.ID, "https://hooks.example.com/a", "0123456789abcdef", []string{webhooks.EventJobPaid})
	require.NoError(t, err)

	_, err = svc.UpdateSubscription(ctx, uuid.New(), sub.ID, "https://evil.example.com", []string{webhooks.EventJobPaid})
	require.ErrorIs(t, err, utils.ErrSubscriptionLookup)

	got, err := svc.UpdateSubscription(ctx, agent.ID, sub.ID, "https://hooks.example.com/b", []string{webhooks.EventJobCompleted})
	require.NoError(t, err)
	require.Equal(t, "https://hooks.example.com/b", got.URL)
	require.Equal(t, []string{webhooks.EventJobCompleted}, got.EventTypes)
}

func TestDeactivateSubscriptionKeepsRecord(t *testing.T) {
	svc, repo, _, agent := newSubscriptionService()
	ctx := context.Background()

	sub, err := svc.CreateSubscription(ctx, agent.ID, "https://hooks.example.com/a", "0123456789abcdef", []string{webhooks.EventJobPaid})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateSubscription(ctx, agent.ID, sub.ID))

	stored, err := repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "deactivation must not delete the row")
	require.False(t, stored.Active)

	// Deactivated subscriptions are excluded from fan-out resolution.
	active, err := repo.ListActiveByAgentAndEvent(ctx, agent.ID, webhooks.EventJobPaid)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestSetLegacyWebhookURL(t *testing.T) {
	svc, _, agentRepo, agent := newSubscriptionService()
	ctx := context.Background()

	require.NoError(t, svc.SetLegacyWebhookURL(ctx, agent.ID, "https://agent.example.com/hook"))
	got, _ := agentRepo.GetByID(ctx, agent.ID)
	require.Equal(t, "https://agent.example.com/hook", got.WebhookURL)

	// Empty clears it.
	require.NoError(t, svc.SetLegacyWebhookURL(ctx, agent.ID, ""))
	got, _ = agentRepo.GetByID(ctx, agent.ID)
	require.Empty(t, got.WebhookURL)

	require.ErrorIs(t, svc.SetLegacyWebhookURL(ctx, uuid.New(), "https://x.example.com"), utils.ErrAgentNotFound)
}

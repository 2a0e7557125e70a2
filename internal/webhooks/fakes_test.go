package webhooks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gigmesh/marketplace/internal/models"
)

// In-memory repository fakes shared by the notifier and dispatcher tests.

type fakeDeliveryRepo struct {
	mu   sync.Mutex
	recs []*models.WebhookDelivery
	err  error
}

func (f *fakeDeliveryRepo) Append(ctx context.Context, rec *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeDeliveryRepo) ListByJobUUID(ctx context.Context, jobUUID uuid.UUID) ([]*models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, r := range f.recs {
		if r.JobUUID == jobUUID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDeliveryRepo) all() []*models.WebhookDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.WebhookDelivery, len(f.recs))
	copy(out, f.recs)
	return out
}

type fakeSubscriptionRepo struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]*models.WebhookSubscription
	listErr error
	health  map[uuid.UUID]bool
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{
		subs:   make(map[uuid.UUID]*models.WebhookSubscription),
		health: make(map[uuid.UUID]bool),
	}
}

func (f *fakeSubscriptionRepo) add(sub *models.WebhookSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub.ID] = sub
}

func (f *fakeSubscriptionRepo) Create(ctx context.Context, sub *models.WebhookSubscription) error {
	f.add(sub)
	return nil
}

func (f *fakeSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id], nil
}

func (f *fakeSubscriptionRepo) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, s := range f.subs {
		if s.AgentID == agentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) ListActiveByAgentAndEvent(ctx context.Context, agentID uuid.UUID, eventType string) ([]*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.WebhookSubscription
	for _, s := range f.subs {
		if s.AgentID == agentID && s.Active && s.WantsEvent(eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) Update(ctx context.Context, sub *models.WebhookSubscription) error {
	f.add(sub)
	return nil
}

func (f *fakeSubscriptionRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[id]; ok {
		s.Active = active
	}
	return nil
}

func (f *fakeSubscriptionRepo) SetLastDeliveryOK(ctx context.Context, id uuid.UUID, ok bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health[id] = ok
	if s, found := f.subs[id]; found {
		s.LastDeliveryOK = ok
	}
	return nil
}


func (f *fakeSubscriptionRepo) healthOf(id uuid.UUID) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.health[id]
	return v, ok
}

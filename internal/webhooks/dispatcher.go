package webhooks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigmesh/marketplace/internal/constants"
	"github.com/gigmesh/marketplace/internal/models"
	"github.com/gigmesh/marketplace/internal/repositories"
	"github.com/gigmesh/marketplace/internal/utils"
)

/*
Dispatcher fans a typed event out to every active webhook subscription the
agent has registered for that event type. Each subscription is delivered
concurrently and independently: its own Event id, its own HMAC signature, its
own retry timer. One stuck or failing subscriber never blocks, retries or
cancels delivery to another.

The lifecycle controller never awaits a dispatch: DispatchDetached runs the
fan-out in a goroutine tracked by an internal WaitGroup, and Close cancels
in-flight backoff sleeps and drains the set at shutdown so detached work is
never silently dropped.
*/
type Dispatcher struct {
	client     *Client
	subs       repositories.WebhookSubscriptionRepository
	deliveries repositories.WebhookDeliveryRepository

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(
	client *Client,
	subs repositories.WebhookSubscriptionRepository,
	deliveries repositories.WebhookDeliveryRepository,
) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		client:     client,
		subs:       subs,
		deliveries: deliveries,
		rootCtx:    ctx,
		cancel:     cancel,
	}
}

// Dispatch resolves the subscriptions for (agentID, eventType) and delivers
// to each concurrently, returning once every sequence concludes. Zero
// matching subscriptions is normal: no HTTP call, no delivery record.
//
// A subscription lookup failure drops the event for this invocation: it is
// logged, nothing is retried, and the triggering state transition is not
// affected.
func (d *Dispatcher) Dispatch(ctx context.Context, jobUUID uuid.UUID, agentID uuid.UUID, eventType string, data any) {
	subs, err := d.subs.ListActiveByAgentAndEvent(ctx, agentID, eventType)
	if err != nil {
		utils.Logger.WithError(err).Errorf("Subscription lookup failed; dropping %s event for agent %s", eventType, agentID)
		return
	}
	if len(subs) == 0 {
		return
	}

	var fanout sync.WaitGroup
	for _, sub := range subs {
		fanout.Add(1)
		go func(sub *models.WebhookSubscription) {
			defer fanout.Done()
			d.deliverToSubscription(ctx, jobUUID, sub, eventType, data)
		}(sub)
	}
	fanout.Wait()
}

// DispatchDetached is the fire-and-forget entry point used by the lifecycle
// controller. Delivery proceeds on the dispatcher's root context so it
// outlives the triggering HTTP request.
func (d *Dispatcher) DispatchDetached(jobUUID uuid.UUID, agentID uuid.UUID, eventType string, data any) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(d.rootCtx, jobUUID, agentID, eventType, data)
	}()
}

// deliverToSubscription runs one full attempt sequence for one subscription:
// fresh event, HMAC signature, up to 3 attempts with 1s/2s sleeps, then the
// health-flag update and one appended delivery record.
func (d *Dispatcher) deliverToSubscription(
	ctx context.Context,
	jobUUID uuid.UUID,
	sub *models.WebhookSubscription,
	eventType string,
	data any,
) {
	event := NewEvent(eventType, data)
	body, err := json.Marshal(event)
	if err != nil {
		utils.Logger.WithError(err).Errorf("Failed to serialize %s event for subscription %s", eventType, sub.ID)
		return
	}

	headers := map[string]string{
		HeaderSignature: Sign(sub.Secret, body),
		HeaderEvent:     event.Type,
		HeaderDelivery:  event.ID,
	}

	var (
		res       Result
		attempts  int
		ok        bool
		cancelled bool
	)
	for attempt := 1; attempt <= constants.DispatchMaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			if !sleepCtx(ctx, backoff) {
				cancelled = true
				break
			}
		}

		res = d.client.Post(ctx, sub.URL, body, headers)
		attempts++

		if res.Outcome == OutcomeSuccess {
			ok = true
			break
		}
		if !res.Outcome.Retryable() {
			break
		}
	}

	// Advisory only: surfaces unhealthy endpoints to the owning agent, never
	// disables future deliveries.
	if err := d.subs.SetLastDeliveryOK(context.Background(), sub.ID, ok); err != nil {
		utils.Logger.WithError(err).Warnf("Failed to update health flag for subscription %s", sub.ID)
	}

	rec := &models.WebhookDelivery{
		ID:             uuid.New(),
		JobUUID:        jobUUID,
		SubscriptionID: &sub.ID,
		EventID:        event.ID,
		EventType:      event.Type,
		TargetURL:      sub.URL,
		Success:        ok,
		Attempts:       attempts,
		CreatedAt:      time.Now().UTC(),
	}
	if cancelled {
		rec.LastError = utils.Ptr("cancelled")
	} else if !ok {
		rec.LastError = utils.Ptr(res.ErrorDetail())
	}
	if err := d.deliveries.Append(context.Background(), rec); err != nil {
		utils.Logger.WithError(err).Warnf("Failed to record webhook delivery %s for job %s", event.ID, jobUUID)
	}
}

// Drain waits for all detached dispatches to conclude.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

// Close aborts in-flight backoff sleeps and drains detached work. Sequences
// interrupted mid-backoff finalize their records as cancelled, not failed.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

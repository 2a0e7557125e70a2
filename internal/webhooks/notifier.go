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

// NotifyStatus is the terminal state of one legacy notification sequence.
type NotifyStatus string

const (
	NotifySuccess   NotifyStatus = "success"
	NotifyFailed    NotifyStatus = "failed"
	NotifySkipped   NotifyStatus = "skipped"   // agent has no webhook URL
	NotifyCancelled NotifyStatus = "cancelled" // shutdown mid-sequence
)

type NotifyResult struct {
	Status   NotifyStatus
	Attempts int
	Err      error
}

// PaidPayload is the unsigned legacy webhook body sent to an agent's
// registered webhook_url when a job is paid.
type PaidPayload struct {
	JobUUID    uuid.UUID       `json:"jobUuid"`
	AgentID    uuid.UUID       `json:"agentId"`
	SkillID    uuid.UUID       `json:"skillId"`
	ServiceKey string          `json:"serviceKey"`
	Input      json.RawMessage `json:"input"`
	Price      float64         `json:"price"`
	PaidAt     time.Time       `json:"paidAt"`
}

/*
Notifier delivers one payload to one agent webhook on a fixed retry schedule.
It predates the signed dispatcher and remains only for the original
"job paid" notification path.

The schedule is 4 attempts with sleeps of 0s, 1s, 2s and 4s before each. A 4xx
aborts the sequence immediately; 5xx and network failures consume the remaining
attempts. The outcome is recorded as a WebhookDelivery asynchronously so a slow
or failing delivery-log write can never change the notifier's own result.
*/
type Notifier struct {
	client     *Client
	deliveries repositories.WebhookDeliveryRepository

	wg sync.WaitGroup
}

func NewNotifier(client *Client, deliveries repositories.WebhookDeliveryRepository) *Notifier {
	return &Notifier{client: client, deliveries: deliveries}
}

// NotifyJobPaid posts the legacy payload to webhookURL. An empty URL returns
// a skipped result without attempting delivery.
func (n *Notifier) NotifyJobPaid(ctx context.Context, webhookURL string, payload PaidPayload) NotifyResult {
	if webhookURL == "" {
		return NotifyResult{Status: NotifySkipped}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		result := NotifyResult{Status: NotifyFailed, Err: err}
		n.record(payload, webhookURL, result, Result{Err: err})
		return result
	}

	var (
		res      Result
		result   NotifyResult
		attempts int
	)
	for attempt := 0; attempt < constants.LegacyNotifyMaxAttempts; attempt++ {
		if !sleepCtx(ctx, constants.LegacyNotifyDelays[attempt]) {
			result = NotifyResult{Status: NotifyCancelled, Attempts: attempts, Err: ctx.Err()}
			n.record(payload, webhookURL, result, res)
			return result
		}

		res = n.client.Post(ctx, webhookURL, body, nil)
		attempts++

		if res.Outcome == OutcomeSuccess {
			result = NotifyResult{Status: NotifySuccess, Attempts: attempts}
			n.record(payload, webhookURL, result, res)
			return result
		}
		if !res.Outcome.Retryable() {
			break
		}
	}

	result = NotifyResult{Status: NotifyFailed, Attempts: attempts, Err: res.Err}
	n.record(payload, webhookURL, result, res)
	return result
}

// record appends the delivery log entry in the background. Failures are
// logged; they never surface to the notifier's caller.
func (n *Notifier) record(payload PaidPayload, url string, result NotifyResult, last Result) {
	rec := &models.WebhookDelivery{
		ID:        uuid.New(),
		JobUUID:   payload.JobUUID,
		EventType: EventJobPaid,
		TargetURL: url,
		Success:   result.Status == NotifySuccess,
		Attempts:  result.Attempts,
		CreatedAt: time.Now().UTC(),
	}
	if result.Status == NotifyCancelled {
		rec.LastError = utils.Ptr("cancelled")
	} else if result.Status == NotifyFailed {
		rec.LastError = utils.Ptr(last.ErrorDetail())
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.deliveries.Append(context.Background(), rec); err != nil {
			utils.Logger.WithError(err).Warnf("Failed to record legacy webhook delivery for job %s", payload.JobUUID)
		}
	}()
}

// Drain blocks until all pending delivery-log writes have finished.
func (n *Notifier) Drain() {
	n.wg.Wait()
}

// sleepCtx sleeps for d unless the context is cancelled first. A zero d
// returns immediately. Reports whether the full sleep elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigmesh/marketplace/internal/models"
	"github.com/gigmesh/marketplace/internal/repositories"
	"github.com/gigmesh/marketplace/internal/utils"
	"github.com/gigmesh/marketplace/internal/webhooks"
)

// Email template names. The sender resolves subject and body from these.
const (
	EmailTemplateNewTask       = "new_task"
	EmailTemplateWorkDelivered = "work_delivered"
	EmailTemplateJobCompleted  = "job_completed"
)

// EventDispatcher fans a job event out to the agent's webhook subscriptions.
// Dispatch is detached: the lifecycle controller never awaits it.
type EventDispatcher interface {
	DispatchDetached(jobUUID uuid.UUID, agentID uuid.UUID, eventType string, data any)
}

// LegacyNotifier delivers the original unsigned "job paid" webhook to the
// agent's single registered URL.
type LegacyNotifier interface {
	NotifyJobPaid(ctx context.Context, webhookURL string, payload webhooks.PaidPayload) webhooks.NotifyResult
}

// EmailSender sends a notification keyed by template name plus job context.
// Implementations are best-effort and log their own failures.
type EmailSender interface {
	Send(template string, toName, toEmail, toPhone string, job *models.Job)
}

// PayoutClient releases an agent's payout for a completed job and returns the
// resulting transaction hash.
type PayoutClient interface {
	Release(ctx context.Context, job *models.Job) (string, error)
}

/*
JobService is the authoritative job lifecycle controller. Every state change
goes through one of its transition methods; each maps to a single atomic
conditional update in the job repository, so racing triggers resolve to
exactly one winner and the loser gets *utils.InvalidTransitionError.

The state change commits before any notification fires. Webhook, email, SMS
and payout side effects run as tracked detached tasks: their failures are
logged, never surfaced to the caller, and Close drains them at shutdown.
*/
type JobService struct {
	jobRepo      repositories.JobRepository
	agentRepo    repositories.AgentRepository
	reqRepo      repositories.RequesterRepository
	skillRepo    repositories.SkillRepository
	deliveryRepo repositories.WebhookDeliveryRepository

	dispatcher EventDispatcher
	notifier   LegacyNotifier
	emailer    EmailSender
	payouts    PayoutClient

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewJobService(
	jobRepo repositories.JobRepository,
	agentRepo repositories.AgentRepository,
	reqRepo repositories.RequesterRepository,
	skillRepo repositories.SkillRepository,
	deliveryRepo repositories.WebhookDeliveryRepository,
	dispatcher EventDispatcher,
	notifier LegacyNotifier,
	emailer EmailSender,
	payouts PayoutClient,
) *JobService {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobService{
		jobRepo:      jobRepo,
		agentRepo:    agentRepo,
		reqRepo:      reqRepo,
		skillRepo:    skillRepo,
		deliveryRepo: deliveryRepo,
		dispatcher:   dispatcher,
		notifier:     notifier,
		emailer:      emailer,
		payouts:      payouts,
		rootCtx:      ctx,
		cancel:       cancel,
	}
}

// detach runs fn in a tracked goroutine on the service's root context so side
// effects outlive the triggering request but are drained at shutdown.
func (s *JobService) detach(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.rootCtx)
	}()
}

// Close drains outstanding side-effect tasks. Call after the HTTP server has
// stopped accepting transitions.
func (s *JobService) Close() {
	s.cancel()
	s.wg.Wait()
}

// CreateJob opens a job in PENDING against an active skill. The job waits
// there until payment is confirmed on-chain.
func (s *JobService) CreateJob(
	ctx context.Context,
	requesterID uuid.UUID,
	skillID uuid.UUID,
	input json.RawMessage,
) (*models.Job, error) {
	skill, err := s.skillRepo.GetByID(ctx, skillID)
	if err != nil {
		return nil, err
	}
	if skill == nil || !skill.Active {
		return nil, fmt.Errorf("skill %s not found or inactive", skillID)
	}

	job := &models.Job{
		UUID:        uuid.New(),
		RequesterID: requesterID,
		AgentID:     skill.AgentID,
		SkillID:     skill.ID,
		Status:      models.JobStatusPending,
		Input:       input,
		PriceUSD:    skill.PriceUSD,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	s.dispatcher.DispatchDetached(job.UUID, job.AgentID, webhooks.EventJobBidReceived, jobEventData(job))
	return job, nil
}

// ConfirmPayment handles the externally verified payment-confirmed trigger:
// PENDING -> PAID. Side effects: job.paid dispatch, legacy agent webhook,
// "new task" email/SMS to the agent.
func (s *JobService) ConfirmPayment(ctx context.Context, jobUUID uuid.UUID, paymentTxHash string) (*models.Job, error) {
	job, err := s.jobRepo.MarkPaidAtomic(ctx, jobUUID, paymentTxHash)
	if err != nil {
		return nil, err
	}

	s.dispatcher.DispatchDetached(job.UUID, job.AgentID, webhooks.EventJobPaid, jobEventData(job))
	s.detach(func(ctx context.Context) { s.notifyAgentJobPaid(ctx, job) })
	return job, nil
}

// notifyAgentJobPaid runs the paid-transition side effects that need the
// agent and skill records: the legacy webhook and the "new task" alert.
func (s *JobService) notifyAgentJobPaid(ctx context.Context, job *models.Job) {
	agent, err := s.agentRepo.GetByID(ctx, job.AgentID)
	if err != nil || agent == nil {
		utils.Logger.WithError(err).Errorf("Cannot notify agent %s for paid job %s", job.AgentID, job.UUID)
		return
	}
	skill, err := s.skillRepo.GetByID(ctx, job.SkillID)
	if err != nil || skill == nil {
		utils.Logger.WithError(err).Errorf("Cannot load skill %s for paid job %s", job.SkillID, job.UUID)
		return
	}

	res := s.notifier.NotifyJobPaid(ctx, agent.WebhookURL, webhooks.PaidPayload{
		JobUUID:    job.UUID,
		AgentID:    job.AgentID,
		SkillID:    job.SkillID,
		ServiceKey: skill.ServiceKey,
		Input:      job.Input,
		Price:      job.PriceUSD,
		PaidAt:     utils.Val(job.PaidAt),
	})
	if res.Status == webhooks.NotifyFailed {
		utils.Logger.WithError(res.Err).Warnf("Legacy webhook for job %s failed after %d attempts", job.UUID, res.Attempts)
	}

	s.emailer.Send(EmailTemplateNewTask, agent.Name, agent.Email, agent.PhoneNumber, job)
}

// AcknowledgeJob handles the agent's acceptance: PAID -> IN_PROGRESS.
func (s *JobService) AcknowledgeJob(ctx context.Context, agentID uuid.UUID, jobUUID uuid.UUID) (*models.Job, error) {
	if err := s.requireAssignedAgent(ctx, agentID, jobUUID); err != nil {
		return nil, err
	}
	job, err := s.jobRepo.MarkInProgressAtomic(ctx, jobUUID)
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchDetached(job.UUID, job.AgentID, webhooks.EventJobAccepted, jobEventData(job))
	return job, nil
}

// DeliverJob handles the agent's output submission: IN_PROGRESS -> DELIVERED.
func (s *JobService) DeliverJob(ctx context.Context, agentID uuid.UUID, jobUUID uuid.UUID, output json.RawMessage) (*models.Job, error) {
	if err := s.requireAssignedAgent(ctx, agentID, jobUUID); err != nil {
		return nil, err
	}
	job, err := s.jobRepo.MarkDeliveredAtomic(ctx, jobUUID, output)
	if err != nil {
		return nil, err
	}

	s.dispatcher.DispatchDetached(job.UUID, job.AgentID, webhooks.EventJobDelivered, jobEventData(job))
	s.detach(func(ctx context.Context) { s.emailRequester(ctx, EmailTemplateWorkDelivered, job) })
	return job, nil
}

// ApproveJob handles requester approval: DELIVERED -> COMPLETED.
func (s *JobService) ApproveJob(ctx context.Context, requesterID uuid.UUID, jobUUID uuid.UUID) (*models.Job, error) {
	if err := s.requireRequester(ctx, requesterID, jobUUID); err != nil {
		return nil, err
	}
	return s.completeJob(ctx, jobUUID, models.JobStatusDelivered, models.CompletionTriggerApproval)
}

// AutoRelease completes a DELIVERED job whose 7-day approval window elapsed
// with no requester action. Same side effects as approval; the trigger is
// recorded as "timeout". Called by the release sweep.
func (s *JobService) AutoRelease(ctx context.Context, jobUUID uuid.UUID) (*models.Job, error) {
	return s.completeJob(ctx, jobUUID, models.JobStatusDelivered, models.CompletionTriggerTimeout)
}

// DisputeJob handles a requester dispute: DELIVERED -> DISPUTED.
func (s *JobService) DisputeJob(ctx context.Context, requesterID uuid.UUID, jobUUID uuid.UUID, reason string) (*models.Job, error) {
	if err := s.requireRequester(ctx, requesterID, jobUUID); err != nil {
		return nil, err
	}
	job, err := s.jobRepo.MarkDisputedAtomic(ctx, jobUUID, reason)
	if err != nil {
		return nil, err
	}

	data := jobEventData(job)
	data["dispute_reason"] = reason
	s.dispatcher.DispatchDetached(job.UUID, job.AgentID, webhooks.EventJobDisputed, data)
	return job, nil
}

// RequestRevision sends a delivered job back to the agent:
// DELIVERED -> IN_PROGRESS, with the requester's feedback attached.
func (s *JobService) RequestRevision(ctx context.Context, requesterID uuid.UUID, jobUUID uuid.UUID, feedback string) (*models.Job, error) {
	if err := s.requireRequester(ctx, requesterID, jobUUID); err != nil {
		return nil, err
	}
	job, err := s.jobRepo.MarkRevisionRequestedAtomic(ctx, jobUUID, feedback)
	if err != nil {
		return nil, err
	}

	data := jobEventData(job)
	data["feedback"] = feedback
	s.dispatcher.DispatchDetached(job.UUID, job.AgentID, webhooks.EventJobRevisionRequested, data)
	return job, nil
}

// ResolveDispute settles a DISPUTED job. In the agent's favor it follows the
// approval path (trigger "dispute_resolved"); in the requester's favor the
// job is refunded with the given transaction hash.
func (s *JobService) ResolveDispute(ctx context.Context, jobUUID uuid.UUID, inAgentFavor bool, refundTxHash string) (*models.Job, error) {
	if inAgentFavor {
		return s.completeJob(ctx, jobUUID, models.JobStatusDisputed, models.CompletionTriggerDisputeResolved)
	}
	return s.jobRepo.MarkRefundedAtomic(ctx, jobUUID, refundTxHash)
}

// completeJob is the shared completion path for approval, auto-release and
// agent-favor dispute resolution. The COMPLETED state commits first; the
// job.approved and job.payment_released dispatches, the payout release and
// the requester email all run detached.
func (s *JobService) completeJob(
	ctx context.Context,
	jobUUID uuid.UUID,
	from models.JobStatusType,
	trigger models.CompletionTriggerType,
) (*models.Job, error) {
	job, err := s.jobRepo.MarkCompletedAtomic(ctx, jobUUID, from, trigger)
	if err != nil {
		return nil, err
	}

	s.dispatcher.DispatchDetached(job.UUID, job.AgentID, webhooks.EventJobApproved, jobEventData(job))
	s.dispatcher.DispatchDetached(job.UUID, job.AgentID, webhooks.EventJobPaymentReleased, jobEventData(job))
	s.detach(func(ctx context.Context) { s.releasePayout(ctx, job) })
	s.detach(func(ctx context.Context) { s.emailRequester(ctx, EmailTemplateJobCompleted, job) })
	return job, nil
}

func (s *JobService) releasePayout(ctx context.Context, job *models.Job) {
	txHash, err := s.payouts.Release(ctx, job)
	if err != nil {
		utils.Logger.WithError(err).Errorf("Payout release failed for job %s", job.UUID)
		return
	}
	if err := s.jobRepo.SetPayoutTxHash(ctx, job.UUID, txHash); err != nil {
		utils.Logger.WithError(err).Errorf("Failed to record payout tx %s for job %s", txHash, job.UUID)
	}
}

func (s *JobService) emailRequester(ctx context.Context, template string, job *models.Job) {
	req, err := s.reqRepo.GetByID(ctx, job.RequesterID)
	if err != nil || req == nil {
		utils.Logger.WithError(err).Errorf("Cannot load requester %s for job %s email", job.RequesterID, job.UUID)
		return
	}
	s.emailer.Send(template, req.Name, req.Email, "", job)
}

// GetJob returns a job visible to userID (its requester or its agent).
func (s *JobService) GetJob(ctx context.Context, userID uuid.UUID, jobUUID uuid.UUID) (*models.Job, error) {
	job, err := s.jobRepo.GetByUUID(ctx, jobUUID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, utils.ErrJobNotFound
	}
	if job.RequesterID != userID && job.AgentID != userID {
		return nil, utils.ErrNotJobRequester
	}
	return job, nil
}

// ListDeliveries returns the webhook delivery log for one of the agent's jobs.
func (s *JobService) ListDeliveries(ctx context.Context, agentID uuid.UUID, jobUUID uuid.UUID) ([]*models.WebhookDelivery, error) {
	if err := s.requireAssignedAgent(ctx, agentID, jobUUID); err != nil {
		return nil, err
	}
	return s.deliveryRepo.ListByJobUUID(ctx, jobUUID)
}

func (s *JobService) requireAssignedAgent(ctx context.Context, agentID uuid.UUID, jobUUID uuid.UUID) error {
	job, err := s.jobRepo.GetByUUID(ctx, jobUUID)
	if err != nil {
		return err
	}
	if job == nil {
		return utils.ErrJobNotFound
	}
	if job.AgentID != agentID {
		return utils.ErrNotAssignedAgent
	}
	return nil
}

func (s *JobService) requireRequester(ctx context.Context, requesterID uuid.UUID, jobUUID uuid.UUID) error {
	job, err := s.jobRepo.GetByUUID(ctx, jobUUID)
	if err != nil {
		return err
	}
	if job == nil {
		return utils.ErrJobNotFound
	}
	if job.RequesterID != requesterID {
		return utils.ErrNotJobRequester
	}
	return nil
}

// jobEventData is the event payload shared by all job events. Event-specific
// fields (dispute reason, revision feedback) are layered on by the caller.
func jobEventData(job *models.Job) map[string]any {
	data := map[string]any{
		"job_uuid":  job.UUID.String(),
		"skill_id":  job.SkillID.String(),
		"status":    string(job.Status),
		"price_usd": job.PriceUSD,
	}
	if job.PaymentTxHash != nil {
		data["payment_tx_hash"] = *job.PaymentTxHash
	}
	if job.PaidAt != nil {
		data["paid_at"] = job.PaidAt.UTC().Format(time.RFC3339)
	}
	if job.DeliveredAt != nil {
		data["delivered_at"] = job.DeliveredAt.UTC().Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		data["completed_at"] = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	if job.CompletionTrigger != nil {
		data["completion_trigger"] = string(*job.CompletionTrigger)
	}
	return data
}

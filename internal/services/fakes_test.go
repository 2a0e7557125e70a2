package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigmesh/marketplace/internal/models"
	"github.com/gigmesh/marketplace/internal/utils"
	"github.com/gigmesh/marketplace/internal/webhooks"
)

/*
memJobRepo is an in-memory JobRepository with the same conditional-transition
contract as the SQL implementation: each Mark*Atomic holds the lock, checks
the source state and mutates in one critical section, so concurrent triggers
race exactly as they would against the row lock.
*/
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*models.Job)}
}

func (r *memJobRepo) Create(ctx context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	cp.ID = int64(len(r.jobs) + 1)
	cp.RowVersion = 1
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	r.jobs[job.UUID] = &cp
	job.ID = cp.ID
	return nil
}

func (r *memJobRepo) GetByUUID(ctx context.Context, jobUUID uuid.UUID) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobUUID]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) transition(
	jobUUID uuid.UUID,
	allowed []models.JobStatusType,
	mutate func(j *models.Job),
) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobUUID]
	if !ok {
		return nil, utils.ErrJobNotFound
	}
	permitted := false
	for _, st := range allowed {
		if j.Status == st {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, utils.NewInvalidTransitionError(jobUUID.String(), j.Status, allowed...)
	}
	mutate(j)
	j.RowVersion++
	j.UpdatedAt = time.Now().UTC()
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) MarkPaidAtomic(ctx context.Context, jobUUID uuid.UUID, paymentTxHash string) (*models.Job, error) {
	return r.transition(jobUUID, []models.JobStatusType{models.JobStatusPending}, func(j *models.Job) {
		j.Status = models.JobStatusPaid
		j.PaymentTxHash = utils.Ptr(paymentTxHash)
		j.PaidAt = utils.Ptr(time.Now().UTC())
	})
}

func (r *memJobRepo) MarkInProgressAtomic(ctx context.Context, jobUUID uuid.UUID) (*models.Job, error) {
	return r.transition(jobUUID, []models.JobStatusType{models.JobStatusPaid}, func(j *models.Job) {
		j.Status = models.JobStatusInProgress
	})
}

func (r *memJobRepo) MarkDeliveredAtomic(ctx context.Context, jobUUID uuid.UUID, output []byte) (*models.Job, error) {
	return r.transition(jobUUID, []models.JobStatusType{models.JobStatusInProgress}, func(j *models.Job) {
		j.Status = models.JobStatusDelivered
		j.Output = output
		j.DeliveredAt = utils.Ptr(time.Now().UTC())
	})
}

func (r *memJobRepo) MarkCompletedAtomic(ctx context.Context, jobUUID uuid.UUID, from models.JobStatusType, trigger models.CompletionTriggerType) (*models.Job, error) {
	return r.transition(jobUUID, []models.JobStatusType{from}, func(j *models.Job) {
		j.Status = models.JobStatusCompleted
		j.CompletionTrigger = &trigger
		j.CompletedAt = utils.Ptr(time.Now().UTC())
	})
}

func (r *memJobRepo) MarkDisputedAtomic(ctx context.Context, jobUUID uuid.UUID, reason string) (*models.Job, error) {
	return r.transition(jobUUID, []models.JobStatusType{models.JobStatusDelivered}, func(j *models.Job) {
		j.Status = models.JobStatusDisputed
		j.DisputeReason = utils.Ptr(reason)
	})
}

func (r *memJobRepo) MarkRevisionRequestedAtomic(ctx context.Context, jobUUID uuid.UUID, feedback string) (*models.Job, error) {
	return r.transition(jobUUID, []models.JobStatusType{models.JobStatusDelivered}, func(j *models.Job) {
		j.Status = models.JobStatusInProgress
		j.RevisionFeedback = utils.Ptr(feedback)
	})
}

func (r *memJobRepo) MarkRefundedAtomic(ctx context.Context, jobUUID uuid.UUID, refundTxHash string) (*models.Job, error) {
	return r.transition(jobUUID, []models.JobStatusType{models.JobStatusDisputed}, func(j *models.Job) {
		j.Status = models.JobStatusRefunded
		j.RefundTxHash = utils.Ptr(refundTxHash)
		trigger := models.CompletionTriggerDisputeResolved
		j.CompletionTrigger = &trigger
		j.CompletedAt = utils.Ptr(time.Now().UTC())
	})
}

func (r *memJobRepo) SetPayoutTxHash(ctx context.Context, jobUUID uuid.UUID, payoutTxHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobUUID]
	if !ok {
		return utils.ErrJobNotFound
	}
	j.PayoutTxHash = utils.Ptr(payoutTxHash)
	return nil
}

func (r *memJobRepo) ListDeliveredBefore(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Job
	for _, j := range r.jobs {
		if j.Status == models.JobStatusDelivered && j.DeliveredAt != nil && !j.DeliveredAt.After(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- collaborator fakes ----

type dispatchedEvent struct {
	JobUUID   uuid.UUID
	AgentID   uuid.UUID
	EventType string
	Data      any
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []dispatchedEvent
}

func (f *fakeDispatcher) DispatchDetached(jobUUID uuid.UUID, agentID uuid.UUID, eventType string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, dispatchedEvent{JobUUID: jobUUID, AgentID: agentID, EventType: eventType, Data: data})
}

func (f *fakeDispatcher) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

func (f *fakeDispatcher) countOf(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type notifyCall struct {
	URL     string
	Payload webhooks.PaidPayload
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) NotifyJobPaid(ctx context.Context, url string, payload webhooks.PaidPayload) webhooks.NotifyResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{URL: url, Payload: payload})
	if url == "" {
		return webhooks.NotifyResult{Status: webhooks.NotifySkipped}
	}
	return webhooks.NotifyResult{Status: webhooks.NotifySuccess, Attempts: 1}
}

func (f *fakeNotifier) allCalls() []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notifyCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type emailCall struct {
	Template string
	ToEmail  string
	ToPhone  string
	JobUUID  uuid.UUID
}

type fakeEmailer struct {
	mu    sync.Mutex
	calls []emailCall
}

func (f *fakeEmailer) Send(template string, toName, toEmail, toPhone string, job *models.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, emailCall{Template: template, ToEmail: toEmail, ToPhone: toPhone, JobUUID: job.UUID})
}

func (f *fakeEmailer) allCalls() []emailCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emailCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakePayouts struct {
	mu       sync.Mutex
	released []uuid.UUID
	err      error
}

func (f *fakePayouts) Release(ctx context.Context, job *models.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.released = append(f.released, job.UUID)
	return "0xpayout" + job.UUID.String()[:8], nil
}

func (f *fakePayouts) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.released)
}

type fakeAgentRepo struct {
	mu     sync.Mutex
	agents map[uuid.UUID]*models.Agent
}

func newFakeAgentRepo() *fakeAgentRepo {
	return &fakeAgentRepo{agents: make(map[uuid.UUID]*models.Agent)}
}

func (f *fakeAgentRepo) add(a *models.Agent) { f.agents[a.ID] = a }

func (f *fakeAgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[id], nil
}

func (f *fakeAgentRepo) SetWebhookURL(ctx context.Context, id uuid.UUID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.agents[id]; ok {
		a.WebhookURL = url
	}
	return nil
}

type fakeRequesterRepo struct {
	requesters map[uuid.UUID]*models.Requester
}

func newFakeRequesterRepo() *fakeRequesterRepo {
	return &fakeRequesterRepo{requesters: make(map[uuid.UUID]*models.Requester)}
}

func (f *fakeRequesterRepo) add(r *models.Requester) { f.requesters[r.ID] = r }

func (f *fakeRequesterRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Requester, error) {
	return f.requesters[id], nil
}

type fakeSkillRepo struct {
	skills map[uuid.UUID]*models.Skill
}

func newFakeSkillRepo() *fakeSkillRepo {
	return &fakeSkillRepo{skills: make(map[uuid.UUID]*models.Skill)}
}

func (f *fakeSkillRepo) add(s *models.Skill) { f.skills[s.ID] = s }

func (f *fakeSkillRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Skill, error) {
	return f.skills[id], nil
}

type fakeDeliveryRepo struct {
	mu   sync.Mutex
	recs []*models.WebhookDelivery
}

func (f *fakeDeliveryRepo) Append(ctx context.Context, rec *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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

// ---- shared test fixture ----

type lifecycleFixture struct {
	jobs       *memJobRepo
	agents     *fakeAgentRepo
	requesters *fakeRequesterRepo
	skills     *fakeSkillRepo
	deliveries *fakeDeliveryRepo
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	emailer    *fakeEmailer
	payouts    *fakePayouts
	svc        *JobService

	agent     *models.Agent
	requester *models.Requester
	skill     *models.Skill
}

func newLifecycleFixture() *lifecycleFixture {
	f := &lifecycleFixture{
		jobs:       newMemJobRepo(),
		agents:     newFakeAgentRepo(),
		requesters: newFakeRequesterRepo(),
		skills:     newFakeSkillRepo(),
		deliveries: &fakeDeliveryRepo{},
		dispatcher: &fakeDispatcher{},
		notifier:   &fakeNotifier{},
		emailer:    &fakeEmailer{},
		payouts:    &fakePayouts{},
	}

	f.agent = &models.Agent{
		ID:          uuid.New(),
		Name:        "Ada",
		Email:       "ada@example.com",
		PhoneNumber: "+15550001111",
		WebhookURL:  "https://agent.example.com/hook",
	}
	f.requester = &models.Requester{
		ID:    uuid.New(),
		Name:  "Rex",
		Email: "rex@example.com",
	}
	f.skill = &models.Skill{
		ID:         uuid.New(),
		AgentID:    f.agent.ID,
		ServiceKey: "resume-review",
		Title:      "Resume review",
		PriceUSD:   25.0,
		Active:     true,
	}
	f.agents.add(f.agent)
	f.requesters.add(f.requester)
	f.skills.add(f.skill)

	f.svc = NewJobService(
		f.jobs,
		f.agents,
		f.requesters,
		f.skills,
		f.deliveries,
		f.dispatcher,
		f.notifier,
		f.emailer,
		f.payouts,
	)
	return f
}

// seedJob inserts a job directly in the given status, bypassing the service.
func (f *lifecycleFixture) seedJob(status models.JobStatusType) *models.Job {
	job := &models.Job{
		UUID:        uuid.New(),
		RequesterID: f.requester.ID,
		AgentID:     f.agent.ID,
		SkillID:     f.skill.ID,
		Status:      status,
		Input:       json.RawMessage(`{"resume":"..."}`),
		PriceUSD:    f.skill.PriceUSD,
	}
	_ = f.jobs.Create(context.Background(), job)
	now := time.Now().UTC()
	f.jobs.mu.Lock()
	stored := f.jobs.jobs[job.UUID]
	switch status {
	case models.JobStatusPaid, models.JobStatusInProgress:
		stored.PaidAt = &now
	case models.JobStatusDelivered, models.JobStatusDisputed:
		stored.PaidAt = &now
		stored.DeliveredAt = &now
	}
	f.jobs.mu.Unlock()
	return job
}

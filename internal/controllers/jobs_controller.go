package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gigmesh/marketplace/internal/dtos"
	"github.com/gigmesh/marketplace/internal/middleware"
	"github.com/gigmesh/marketplace/internal/services"
	"github.com/gigmesh/marketplace/internal/utils"
)

var validate = validator.New()

type JobsController struct {
	jobService *services.JobService
}

func NewJobsController(js *services.JobService) *JobsController {
	return &JobsController{jobService: js}
}

// ----------------------------------------------------------------
// POST /api/v1/jobs
// ----------------------------------------------------------------
func (c *JobsController) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}

	var req dtos.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, nil)
		return
	}

	job, svcErr := c.jobService.CreateJob(ctx, userID, req.SkillID, req.Input)
	if svcErr != nil {
		utils.Logger.WithError(svcErr).Error("Failed to create job")
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Failed to create job", nil, svcErr)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, dtos.ToJobDTO(job))
}

// ----------------------------------------------------------------
// GET /api/v1/jobs/{uuid}
// ----------------------------------------------------------------
func (c *JobsController) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}
	jobUUID, ok := pathJobUUID(w, r)
	if !ok {
		return
	}

	job, svcErr := c.jobService.GetJob(ctx, userID, jobUUID)
	if svcErr != nil {
		respondLifecycleError(w, svcErr, "Failed to load job")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ToJobDTO(job))
}

// ----------------------------------------------------------------
// POST /internal/v1/jobs/{uuid}/confirm-payment
// Called by the payments service once the on-chain transfer is verified.
// ----------------------------------------------------------------
func (c *JobsController) ConfirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobUUID, ok := pathJobUUID(w, r)
	if !ok {
		return
	}

	var req dtos.ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, nil)
		return
	}

	job, svcErr := c.jobService.ConfirmPayment(ctx, jobUUID, req.PaymentTxHash)
	if svcErr != nil {
		respondLifecycleError(w, svcErr, "Failed to confirm payment")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ToJobDTO(job))
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/{uuid}/acknowledge  (agent)
// ----------------------------------------------------------------
func (c *JobsController) AcknowledgeJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}
	jobUUID, ok := pathJobUUID(w, r)
	if !ok {
		return
	}

	job, svcErr := c.jobService.AcknowledgeJob(ctx, userID, jobUUID)
	if svcErr != nil {
		respondLifecycleError(w, svcErr, "Failed to acknowledge job")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ToJobDTO(job))
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/{uuid}/deliver  (agent)
// ----------------------------------------------------------------
func (c *JobsController) DeliverJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}
	jobUUID, ok := pathJobUUID(w, r)
	if !ok {
		return
	}

	var req dtos.DeliverJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, nil)
		return
	}

	job, svcErr := c.jobService.DeliverJob(ctx, userID, jobUUID, req.Output)
	if svcErr != nil {
		respondLifecycleError(w, svcErr, "Failed to deliver job")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ToJobDTO(job))
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/{uuid}/approve  (requester)
// ----------------------------------------------------------------
func (c *JobsController) ApproveJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}
	jobUUID, ok := pathJobUUID(w, r)
	if !ok {
		return
	}

	job, svcErr := c.jobService.ApproveJob(ctx, userID, jobUUID)
	if svcErr != nil {
		respondLifecycleError(w, svcErr, "Failed to approve job")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ToJobDTO(job))
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/{uuid}/dispute  (requester)
// ----------------------------------------------------------------
func (c *JobsController) DisputeJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}
	jobUUID, ok := pathJobUUID(w, r)
	if !ok {
		return
	}

	var req dtos.DisputeJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, nil)
		return
	}

	job, svcErr := c.jobService.DisputeJob(ctx, userID, jobUUID, req.Reason)
	if svcErr != nil {
		respondLifecycleError(w, svcErr, "Failed to dispute job")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ToJobDTO(job))
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/{uuid}/request-revision  (requester)
// ----------------------------------------------------------------
func (c *JobsController) RequestRevisionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}
	jobUUID, ok := pathJobUUID(w, r)
	if !ok {
		return
	}

	var req dtos.RequestRevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, nil)
		return
	}

	job, svcErr := c.jobService.RequestRevision(ctx, userID, jobUUID, req.Feedback)
	if svcErr != nil {
		respondLifecycleError(w, svcErr, "Failed to request revision")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ToJobDTO(job))
}

// ----------------------------------------------------------------
// POST /internal/v1/jobs/{uuid}/resolve-dispute
// Called from the support console after a human reviews the dispute.
// ----------------------------------------------------------------
func (c *JobsController) ResolveDisputeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobUUID, ok := pathJobUUID(w, r)
	if !ok {
		return
	}

	var req dtos.ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, nil)
		return
	}

	job, svcErr := c.jobService.ResolveDispute(ctx, jobUUID, req.InAgentFavor, req.RefundTxHash)
	if svcErr != nil {
		respondLifecycleError(w, svcErr, "Failed to resolve dispute")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ToJobDTO(job))
}

// ----------------------------------------------------------------
// GET /api/v1/jobs/{uuid}/webhook-deliveries  (agent)
// ----------------------------------------------------------------
func (c *JobsController) ListDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}
	jobUUID, ok := pathJobUUID(w, r)
	if !ok {
		return
	}

	recs, svcErr := c.jobService.ListDeliveries(ctx, userID, jobUUID)
	if svcErr != nil {
		respondLifecycleError(w, svcErr, "Failed to list webhook deliveries")
		return
	}
	out := make([]dtos.DeliveryDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, dtos.ToDeliveryDTO(rec))
	}
	utils.RespondWithJSON(w, http.StatusOK, out)
}

// ----------------------------------------------------------------
// shared helpers
// ----------------------------------------------------------------

func contextUserUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ctxUserID := r.Context().Value(middleware.ContextKeyUserID)
	if ctxUserID == nil {
		utils.RespondErrorWithCode(w, http.StatusUnauthorized, utils.ErrCodeUnauthorized, "No userID in context", nil, nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(ctxUserID.(string))
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Malformed userID in token", nil, err)
		return uuid.Nil, false
	}
	return id, true
}

func pathJobUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["uuid"]
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed job UUID", nil, err)
		return uuid.Nil, false
	}
	return id, true
}

// respondLifecycleError maps domain errors onto HTTP statuses. Invalid
// transitions answer 409 with the current status in Details so callers can
// see who won the race.
func respondLifecycleError(w http.ResponseWriter, err error, publicMsg string) {
	var ite *utils.InvalidTransitionError
	switch {
	case errors.As(err, &ite):
		utils.RespondErrorWithCode(
			w, http.StatusConflict, utils.ErrCodeInvalidTransition,
			publicMsg, map[string]any{"current_status": string(ite.Current)}, err,
		)
	case errors.Is(err, utils.ErrJobNotFound):
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Job not found", nil, nil)
	case errors.Is(err, utils.ErrNotAssignedAgent), errors.Is(err, utils.ErrNotJobRequester):
		utils.RespondErrorWithCode(w, http.StatusForbidden, utils.ErrCodeForbidden, "Not authorized for this job", nil, nil)
	default:
		utils.Logger.WithError(err).Error(publicMsg)
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, publicMsg, nil, err)
	}
}

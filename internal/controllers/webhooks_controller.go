package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gigmesh/marketplace/internal/dtos"
	"github.com/gigmesh/marketplace/internal/services"
	"github.com/gigmesh/marketplace/internal/utils"
)

type WebhooksController struct {
	subService *services.WebhookSubscriptionService
}

func NewWebhooksController(ss *services.WebhookSubscriptionService) *WebhooksController {
	return &WebhooksController{subService: ss}
}

// ----------------------------------------------------------------
// POST /api/v1/webhooks/subscriptions  (agent)
// ----------------------------------------------------------------
func (c *WebhooksController) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}

	var req dtos.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, nil)
		return
	}

	sub, svcErr := c.subService.CreateSubscription(ctx, agentID, req.URL, req.Secret, req.EventTypes)
	if svcErr != nil {
		respondSubscriptionError(w, svcErr, "Failed to create subscription")
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, dtos.ToSubscriptionDTO(sub))
}

// ----------------------------------------------------------------
// GET /api/v1/webhooks/subscriptions  (agent)
// ----------------------------------------------------------------
func (c *WebhooksController) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}

	subs, svcErr := c.subService.ListSubscriptions(ctx, agentID)
	if svcErr != nil {
		utils.Logger.WithError(svcErr).Error("Failed to list subscriptions")
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Failed to list subscriptions", nil, svcErr)
		return
	}
	out := make([]dtos.SubscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		out = append(out, dtos.ToSubscriptionDTO(sub))
	}
	utils.RespondWithJSON(w, http.StatusOK, out)
}

// ----------------------------------------------------------------
// PUT /api/v1/webhooks/subscriptions/{id}  (agent)
// ----------------------------------------------------------------
func (c *WebhooksController) UpdateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}
	subID, ok := pathSubscriptionID(w, r)
	if !ok {
		return
	}

	var req dtos.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, nil)
		return
	}

	sub, svcErr := c.subService.UpdateSubscription(ctx, agentID, subID, req.URL, req.EventTypes)
	if svcErr != nil {
		respondSubscriptionError(w, svcErr, "Failed to update subscription")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ToSubscriptionDTO(sub))
}

// ----------------------------------------------------------------
// DELETE /api/v1/webhooks/subscriptions/{id}  (agent)
// Deactivates; delivery history is retained.
// ----------------------------------------------------------------
func (c *WebhooksController) DeactivateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}
	subID, ok := pathSubscriptionID(w, r)
	if !ok {
		return
	}

	if svcErr := c.subService.DeactivateSubscription(ctx, agentID, subID); svcErr != nil {
		respondSubscriptionError(w, svcErr, "Failed to deactivate subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------------------------------------------------
// PUT /api/v1/webhooks/legacy-url  (agent)
// ----------------------------------------------------------------
func (c *WebhooksController) SetLegacyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID, ok := contextUserUUID(w, r)
	if !ok {
		return
	}

	var req dtos.SetLegacyWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, nil)
		return
	}

	if svcErr := c.subService.SetLegacyWebhookURL(ctx, agentID, req.URL); svcErr != nil {
		respondSubscriptionError(w, svcErr, "Failed to set webhook URL")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathSubscriptionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed subscription id", nil, err)
		return uuid.Nil, false
	}
	return id, true
}

func respondSubscriptionError(w http.ResponseWriter, err error, publicMsg string) {
	switch {
	case errors.Is(err, utils.ErrInvalidPayload):
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid subscription payload", nil, nil)
	case errors.Is(err, utils.ErrSubscriptionExists):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeConflict, "Subscription limit reached", nil, nil)
	case errors.Is(err, utils.ErrSubscriptionLookup):
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Subscription not found", nil, nil)
	case errors.Is(err, utils.ErrAgentNotFound):
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Agent not found", nil, nil)
	default:
		utils.Logger.WithError(err).Error(publicMsg)
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, publicMsg, nil, err)
	}
}

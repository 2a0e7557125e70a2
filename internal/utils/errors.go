package utils

import (
	"errors"
	"fmt"

	"github.com/gigmesh/marketplace/internal/models"
)

/*
   Sentinel errors for marketplace domain logic.
   Controllers can do: if errors.Is(err, ErrXYZ) { ... }
*/
var (
	ErrJobNotFound        = errors.New("job_not_found")
	ErrAgentNotFound      = errors.New("agent_not_found")
	ErrNotAssignedAgent   = errors.New("not_assigned_agent")
	ErrNotJobRequester    = errors.New("not_job_requester")
	ErrSubscriptionExists = errors.New("subscription_exists")
	ErrNoRowsUpdated      = errors.New("no_rows_updated")
	ErrRowVersionConflict = errors.New("row_version_conflict")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrDeliveryCancelled  = errors.New("delivery_cancelled")
	ErrSubscriptionLookup = errors.New("subscription_lookup_failure")
)

/*
   InvalidTransitionError is returned when a lifecycle trigger arrives for a
   job that is not in the required source state. It carries the current and
   expected statuses so the controller can surface both; the stored job is
   never modified when this error is returned.
*/
type InvalidTransitionError struct {
	JobUUID  string
	Current  models.JobStatusType
	Expected []models.JobStatusType
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid_transition: job %s is %s, expected one of %v",
		e.JobUUID, e.Current, e.Expected)
}

func NewInvalidTransitionError(jobUUID string, current models.JobStatusType, expected ...models.JobStatusType) error {
	return &InvalidTransitionError{JobUUID: jobUUID, Current: current, Expected: expected}
}

package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/gigmesh/marketplace/internal/utils"
)

// Job event types, used as wire identifiers. Receivers match on these strings.
const (
	EventJobBidReceived       = "job.bid_received"
	EventJobAccepted          = "job.accepted"
	EventJobPaid              = "job.paid"
	EventJobInProgress        = "job.in_progress"
	EventJobDelivered         = "job.delivered"
	EventJobApproved          = "job.approved"
	EventJobCompleted         = "job.completed"
	EventJobDisputed          = "job.disputed"
	EventJobPaymentReleased   = "job.payment_released"
	EventJobRevisionRequested = "job.revision_requested"
)

var allEventTypes = []string{
	EventJobBidReceived,
	EventJobAccepted,
	EventJobPaid,
	EventJobInProgress,
	EventJobDelivered,
	EventJobApproved,
	EventJobCompleted,
	EventJobDisputed,
	EventJobPaymentReleased,
	EventJobRevisionRequested,
}

// KnownEventType reports whether s is a recognized job event identifier.
func KnownEventType(s string) bool {
	return slices.Contains(allEventTypes, s)
}

// Transport headers carried on every signed delivery.
const (
	HeaderSignature = "X-Signature"
	HeaderEvent     = "X-Event"
	HeaderDelivery  = "X-Delivery"
)

// Event is an immutable, typed notification of a job-state change. A fresh
// Event (with a fresh id) is constructed for every subscription delivery; it
// is never persisted outside its delivery record.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    any    `json:"data"`
}

func NewEvent(eventType string, data any) Event {
	return Event{
		ID:      "evt_" + utils.RandomString(24),
		Type:    eventType,
		Created: time.Now().Unix(),
		Data:    data,
	}
}

// Sign computes the hex HMAC-SHA256 of the exact serialized body using the
// subscription secret. Receivers recompute it over the received bytes and
// compare in constant time before trusting the payload.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

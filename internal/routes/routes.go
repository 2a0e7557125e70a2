package routes

const (
	// Health
	Health = "/health"

	// Requester endpoints
	JobsBase           = "/api/v1/jobs"
	JobByUUID          = "/api/v1/jobs/{uuid}"
	JobApprove         = "/api/v1/jobs/{uuid}/approve"
	JobDispute         = "/api/v1/jobs/{uuid}/dispute"
	JobRequestRevision = "/api/v1/jobs/{uuid}/request-revision"

	// Agent endpoints
	JobAcknowledge = "/api/v1/jobs/{uuid}/acknowledge"
	JobDeliver     = "/api/v1/jobs/{uuid}/deliver"
	JobDeliveries  = "/api/v1/jobs/{uuid}/webhook-deliveries"

	// Agent webhook configuration
	WebhookSubscriptions    = "/api/v1/webhooks/subscriptions"
	WebhookSubscriptionByID = "/api/v1/webhooks/subscriptions/{id}"
	WebhookLegacyURL        = "/api/v1/webhooks/legacy-url"

	// Internal (service-to-service) endpoints
	InternalConfirmPayment = "/internal/v1/jobs/{uuid}/confirm-payment"
	InternalResolveDispute = "/internal/v1/jobs/{uuid}/resolve-dispute"
)

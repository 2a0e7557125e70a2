package constants

import (
	"time"
)

// Webhook delivery settings
const (
	// Per-call HTTP timeouts for the two delivery paths.
	LegacyNotifyTimeout   = 10 * time.Second
	DispatcherPostTimeout = 15 * time.Second

	// Legacy notifier: fixed schedule, aborts early on a 4xx.
	LegacyNotifyMaxAttempts = 4

	// Signed dispatcher: sleeps 1s then 2s between attempts.
	DispatchMaxAttempts = 3

	// Response bodies kept for the delivery log are truncated to this size.
	MaxLoggedResponseBytes = 4 * 1024
)

// LegacyNotifyDelays is the sleep before each legacy attempt (worst case ~7s).
var LegacyNotifyDelays = []time.Duration{
	0,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

// Auto-release settings
const (
	// A DELIVERED job with no requester action completes automatically
	// after this window, with completion trigger "timeout".
	AutoReleaseAfter = 7 * 24 * time.Hour

	// Cron spec for the sweep that finds overdue DELIVERED jobs.
	AutoReleaseSweepSpec = "@every 5m"
)

// Subscription limits
const (
	MaxSubscriptionsPerAgent = 20
	MinWebhookSecretLength   = 16
)

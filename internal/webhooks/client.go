package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gigmesh/marketplace/internal/constants"
)

// Outcome classifies one HTTP POST attempt. Exactly one outcome applies per
// attempt; only server_error and network_error are worth retrying.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"       // 2xx
	OutcomeClientError  Outcome = "client_error"  // 4xx, endpoint will never accept this payload
	OutcomeServerError  Outcome = "server_error"  // 5xx
	OutcomeNetworkError Outcome = "network_error" // timeout, refused, DNS failure
)

func (o Outcome) Retryable() bool {
	return o == OutcomeServerError || o == OutcomeNetworkError
}

// Result is the classification of one attempt plus the raw detail the caller
// needs for its delivery record. The client itself persists nothing.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       string
	Err        error
}

// ErrorDetail renders the failure for a delivery record's last_error column.
func (r Result) ErrorDetail() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.Body != "" {
		return fmt.Sprintf("status %d: %s", r.StatusCode, r.Body)
	}
	return fmt.Sprintf("status %d", r.StatusCode)
}

// Client performs single webhook POST attempts with a bounded timeout.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// Post performs exactly one POST attempt and classifies the result. The
// context bounds the call in addition to the client timeout.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeNetworkError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeNetworkError, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxLoggedResponseBytes))

	res := Result{StatusCode: resp.StatusCode, Body: string(raw)}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		res.Outcome = OutcomeSuccess
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		res.Outcome = OutcomeClientError
	default:
		res.Outcome = OutcomeServerError
	}
	return res
}

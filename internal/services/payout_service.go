package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gigmesh/marketplace/internal/models"
)

// TreasuryPayoutClient releases agent payouts through the internal treasury
// service, which owns wallet custody and on-chain settlement. The lifecycle
// controller only records the returned transaction hash.
type TreasuryPayoutClient struct {
	http       *http.Client
	baseURL    string
	serviceKey string
}

func NewTreasuryPayoutClient(baseURL, serviceKey string, timeout time.Duration) *TreasuryPayoutClient {
	return &TreasuryPayoutClient{
		http:       &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		serviceKey: serviceKey,
	}
}

type treasuryReleaseRequest struct {
	JobUUID   string  `json:"job_uuid"`
	AgentID   string  `json:"agent_id"`
	AmountUSD float64 `json:"amount_usd"`
}

type treasuryReleaseResponse struct {
	TxHash string `json:"tx_hash"`
}

func (c *TreasuryPayoutClient) Release(ctx context.Context, job *models.Job) (string, error) {
	body, err := json.Marshal(treasuryReleaseRequest{
		JobUUID:   job.UUID.String(),
		AgentID:   job.AgentID.String(),
		AmountUSD: job.PriceUSD,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/v1/payouts/release", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Key", c.serviceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("treasury release for job %s returned %d: %s", job.UUID, resp.StatusCode, string(b))
	}

	var out treasuryReleaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("treasury release for job %s returned no tx hash", job.UUID)
	}
	return out.TxHash, nil
}

package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/gigmesh/marketplace/internal/models"
)

type AgentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	SetWebhookURL(ctx context.Context, id uuid.UUID, url string) error
}

type agentRepo struct {
	db DB
}

func NewAgentRepository(db DB) AgentRepository {
	return &agentRepo{db: db}
}

func baseSelectAgent() string {
	return `
        SELECT
            id, name, email, phone_number, webhook_url,
            wallet_address, account_status, created_at, updated_at
        FROM agents
    `
}

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.PhoneNumber,
		&a.WebhookURL,
		&a.WalletAddress,
		&a.AccountStatus,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *agentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	row := r.db.QueryRow(ctx, baseSelectAgent()+" WHERE id=$1", id)
	a, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *agentRepo) SetWebhookURL(ctx context.Context, id uuid.UUID, url string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE agents
        SET webhook_url=$1, updated_at=NOW()
        WHERE id=$2
    `, url, id)
	return err
}

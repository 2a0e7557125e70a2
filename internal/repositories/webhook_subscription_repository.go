package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/gigmesh/marketplace/internal/models"
)

type WebhookSubscriptionRepository interface {
	Create(ctx context.Context, sub *models.WebhookSubscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.WebhookSubscription, error)

	// ListActiveByAgentAndEvent resolves the fan-out set for one dispatch.
	ListActiveByAgentAndEvent(ctx context.Context, agentID uuid.UUID, eventType string) ([]*models.WebhookSubscription, error)

	Update(ctx context.Context, sub *models.WebhookSubscription) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	SetLastDeliveryOK(ctx context.Context, id uuid.UUID, ok bool) error
}

type webhookSubscriptionRepo struct {
	db DB
}

func NewWebhookSubscriptionRepository(db DB) WebhookSubscriptionRepository {
	return &webhookSubscriptionRepo{db: db}
}

func baseSelectSubscription() string {
	return `
        SELECT
            id, agent_id, url, secret, event_types,
            active, last_delivery_ok, created_at, updated_at
        FROM webhook_subscriptions
    `
}

func scanSubscription(row pgx.Row) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	var eventTypes []string
	err := row.Scan(
		&sub.ID,
		&sub.AgentID,
		&sub.URL,
		&sub.Secret,
		&eventTypes,
		&sub.Active,
		&sub.LastDeliveryOK,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.EventTypes = eventTypes
	return &sub, nil
}

func (r *webhookSubscriptionRepo) Create(ctx context.Context, sub *models.WebhookSubscription) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO webhook_subscriptions (
            id, agent_id, url, secret, event_types,
            active, last_delivery_ok, created_at, updated_at
        ) VALUES (
            $1,$2,$3,$4,$5,$6,TRUE,NOW(),NOW()
        )
    `,
		sub.ID,
		sub.AgentID,
		sub.URL,
		sub.Secret,
		sub.EventTypes,
		sub.Active,
	)
	return err
}

func (r *webhookSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error) {
	row := r.db.QueryRow(ctx, baseSelectSubscription()+" WHERE id=$1", id)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (r *webhookSubscriptionRepo) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.WebhookSubscription, error) {
	rows, err := r.db.Query(ctx, baseSelectSubscription()+`
        WHERE agent_id=$1
        ORDER BY created_at
    `, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *webhookSubscriptionRepo) ListActiveByAgentAndEvent(
	ctx context.Context,
	agentID uuid.UUID,
	eventType string,
) ([]*models.WebhookSubscription, error) {
	rows, err := r.db.Query(ctx, baseSelectSubscription()+`
        WHERE agent_id=$1
          AND active=TRUE
          AND $2 = ANY(event_types)
        ORDER BY created_at
    `, agentID, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]*models.WebhookSubscription, error) {
	var out []*models.WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (r *webhookSubscriptionRepo) Update(ctx context.Context, sub *models.WebhookSubscription) error {
	_, err := r.db.Exec(ctx, `
        UPDATE webhook_subscriptions
        SET url=$1, secret=$2, event_types=$3, active=$4, updated_at=NOW()
        WHERE id=$5
    `, sub.URL, sub.Secret, sub.EventTypes, sub.Active, sub.ID)
	return err
}

func (r *webhookSubscriptionRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.db.Exec(ctx, `
        UPDATE webhook_subscriptions
        SET active=$1, updated_at=NOW()
        WHERE id=$2
    `, active, id)
	return err
}

func (r *webhookSubscriptionRepo) SetLastDeliveryOK(ctx context.Context, id uuid.UUID, ok bool) error {
	_, err := r.db.Exec(ctx, `
        UPDATE webhook_subscriptions
        SET last_delivery_ok=$1, updated_at=NOW()
        WHERE id=$2
    `, ok, id)
	return err
}

package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/gigmesh/marketplace/internal/models"
)

// WebhookDeliveryRepository is append-only: one row per dispatch attempt
// sequence, written after the sequence concludes. Rows are never mutated.
type WebhookDeliveryRepository interface {
	Append(ctx context.Context, rec *models.WebhookDelivery) error
	ListByJobUUID(ctx context.Context, jobUUID uuid.UUID) ([]*models.WebhookDelivery, error)
}

type webhookDeliveryRepo struct {
	db DB
}

func NewWebhookDeliveryRepository(db DB) WebhookDeliveryRepository {
	return &webhookDeliveryRepo{db: db}
}

func baseSelectDelivery() string {
	return `
        SELECT
            id, job_uuid, subscription_id, event_id, event_type,
            target_url, success, attempts, last_error,
            created_at, completed_at
        FROM webhook_deliveries
    `
}

func scanDelivery(row pgx.Row) (*models.WebhookDelivery, error) {
	var rec models.WebhookDelivery
	err := row.Scan(
		&rec.ID,
		&rec.JobUUID,
		&rec.SubscriptionID,
		&rec.EventID,
		&rec.EventType,
		&rec.TargetURL,
		&rec.Success,
		&rec.Attempts,
		&rec.LastError,
		&rec.CreatedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *webhookDeliveryRepo) Append(ctx context.Context, rec *models.WebhookDelivery) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO webhook_deliveries (
            id, job_uuid, subscription_id, event_id, event_type,
            target_url, success, attempts, last_error,
            created_at, completed_at
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()
        )
    `,
		rec.ID,
		rec.JobUUID,
		rec.SubscriptionID,
		rec.EventID,
		rec.EventType,
		rec.TargetURL,
		rec.Success,
		rec.Attempts,
		rec.LastError,
		rec.CreatedAt,
	)
	return err
}

func (r *webhookDeliveryRepo) ListByJobUUID(ctx context.Context, jobUUID uuid.UUID) ([]*models.WebhookDelivery, error) {
	rows, err := r.db.Query(ctx, baseSelectDelivery()+`
        WHERE job_uuid=$1
        ORDER BY created_at
    `, jobUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.WebhookDelivery
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

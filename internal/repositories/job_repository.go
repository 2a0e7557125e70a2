package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/gigmesh/marketplace/internal/models"
	"github.com/gigmesh/marketplace/internal/utils"
)

/*
JobRepository is the storage surface for the job lifecycle state machine.

Every Mark*Atomic method performs a conditional transition: inside one
transaction it locks the row, verifies the current status is an allowed source
state, and applies the update. A trigger arriving for a job in any other state
returns *utils.InvalidTransitionError and leaves the row untouched, so two
racing triggers can never both succeed.
*/
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByUUID(ctx context.Context, jobUUID uuid.UUID) (*models.Job, error)

	MarkPaidAtomic(ctx context.Context, jobUUID uuid.UUID, paymentTxHash string) (*models.Job, error)
	MarkInProgressAtomic(ctx context.Context, jobUUID uuid.UUID) (*models.Job, error)
	MarkDeliveredAtomic(ctx context.Context, jobUUID uuid.UUID, output []byte) (*models.Job, error)
	MarkCompletedAtomic(ctx context.Context, jobUUID uuid.UUID, from models.JobStatusType, trigger models.CompletionTriggerType) (*models.Job, error)
	MarkDisputedAtomic(ctx context.Context, jobUUID uuid.UUID, reason string) (*models.Job, error)
	MarkRevisionRequestedAtomic(ctx context.Context, jobUUID uuid.UUID, feedback string) (*models.Job, error)
	MarkRefundedAtomic(ctx context.Context, jobUUID uuid.UUID, refundTxHash string) (*models.Job, error)

	SetPayoutTxHash(ctx context.Context, jobUUID uuid.UUID, payoutTxHash string) error
	ListDeliveredBefore(ctx context.Context, cutoff time.Time) ([]*models.Job, error)
}

type jobRepo struct {
	db DB
}

func NewJobRepository(db DB) JobRepository {
	return &jobRepo{db: db}
}

func baseSelectJob() string {
	return `
        SELECT
            id, uuid, requester_id, agent_id, skill_id, status,
            input, output, price_usd,
            payment_tx_hash, payout_tx_hash, refund_tx_hash,
            dispute_reason, revision_feedback, completion_trigger,
            row_version, created_at, paid_at, delivered_at, completed_at, updated_at
        FROM jobs
    `
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	var input, output []byte
	var trigger *string
	err := row.Scan(
		&job.ID,
		&job.UUID,
		&job.RequesterID,
		&job.AgentID,
		&job.SkillID,
		&job.Status,
		&input,
		&output,
		&job.PriceUSD,
		&job.PaymentTxHash,
		&job.PayoutTxHash,
		&job.RefundTxHash,
		&job.DisputeReason,
		&job.RevisionFeedback,
		&trigger,
		&job.RowVersion,
		&job.CreatedAt,
		&job.PaidAt,
		&job.DeliveredAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Input = input
	job.Output = output
	if trigger != nil {
		t := models.CompletionTriggerType(*trigger)
		job.CompletionTrigger = &t
	}
	return &job, nil
}

func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	return r.db.QueryRow(ctx, `
        INSERT INTO jobs (
            uuid, requester_id, agent_id, skill_id, status,
            input, price_usd, created_at, updated_at, row_version
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,NOW(),NOW(),1
        )
        RETURNING id
    `,
		job.UUID,
		job.RequesterID,
		job.AgentID,
		job.SkillID,
		job.Status,
		[]byte(job.Input),
		job.PriceUSD,
	).Scan(&job.ID)
}

func (r *jobRepo) GetByUUID(ctx context.Context, jobUUID uuid.UUID) (*models.Job, error) {
	row := r.db.QueryRow(ctx, baseSelectJob()+" WHERE uuid=$1", jobUUID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// lockJob fetches the row FOR UPDATE inside tx and enforces the allowed
// source states for a transition.
func lockJob(ctx context.Context, tx pgx.Tx, jobUUID uuid.UUID, allowed ...models.JobStatusType) (*models.Job, error) {
	row := tx.QueryRow(ctx, baseSelectJob()+" WHERE uuid=$1 FOR UPDATE", jobUUID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, st := range allowed {
		if job.Status == st {
			return job, nil
		}
	}
	return nil, utils.NewInvalidTransitionError(jobUUID.String(), job.Status, allowed...)
}

// withJobTx runs fn inside a transaction and re-reads the row on success so
// callers always get the post-transition state.
func (r *jobRepo) withJobTx(
	ctx context.Context,
	jobUUID uuid.UUID,
	allowed []models.JobStatusType,
	fn func(tx pgx.Tx, job *models.Job) error,
) (*models.Job, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	var job *models.Job
	job, err = lockJob(ctx, tx, jobUUID, allowed...)
	if err != nil {
		return nil, err
	}
	if err = fn(tx, job); err != nil {
		return nil, err
	}
	newRow := tx.QueryRow(ctx, baseSelectJob()+" WHERE uuid=$1", jobUUID)
	var out *models.Job
	out, err = scanJob(newRow)
	return out, err
}

func (r *jobRepo) MarkPaidAtomic(ctx context.Context, jobUUID uuid.UUID, paymentTxHash string) (*models.Job, error) {
	return r.withJobTx(ctx, jobUUID,
		[]models.JobStatusType{models.JobStatusPending},
		func(tx pgx.Tx, job *models.Job) error {
			_, err := tx.Exec(ctx, `
                UPDATE jobs
                SET status='PAID',
                    payment_tx_hash=$1,
                    paid_at=NOW(),
                    row_version=row_version+1,
                    updated_at=NOW()
                WHERE uuid=$2
            `, paymentTxHash, jobUUID)
			return err
		})
}

func (r *jobRepo) MarkInProgressAtomic(ctx context.Context, jobUUID uuid.UUID) (*models.Job, error) {
	return r.withJobTx(ctx, jobUUID,
		[]models.JobStatusType{models.JobStatusPaid},
		func(tx pgx.Tx, job *models.Job) error {
			_, err := tx.Exec(ctx, `
                UPDATE jobs
                SET status='IN_PROGRESS',
                    row_version=row_version+1,
                    updated_at=NOW()
                WHERE uuid=$1
            `, jobUUID)
			return err
		})
}

func (r *jobRepo) MarkDeliveredAtomic(ctx context.Context, jobUUID uuid.UUID, output []byte) (*models.Job, error) {
	return r.withJobTx(ctx, jobUUID,
		[]models.JobStatusType{models.JobStatusInProgress},
		func(tx pgx.Tx, job *models.Job) error {
			_, err := tx.Exec(ctx, `
                UPDATE jobs
                SET status='DELIVERED',
                    output=$1,
                    delivered_at=NOW(),
                    row_version=row_version+1,
                    updated_at=NOW()
                WHERE uuid=$2
            `, output, jobUUID)
			return err
		})
}

func (r *jobRepo) MarkCompletedAtomic(
	ctx context.Context,
	jobUUID uuid.UUID,
	from models.JobStatusType,
	trigger models.CompletionTriggerType,
) (*models.Job, error) {
	return r.withJobTx(ctx, jobUUID,
		[]models.JobStatusType{from},
		func(tx pgx.Tx, job *models.Job) error {
			_, err := tx.Exec(ctx, `
                UPDATE jobs
                SET status='COMPLETED',
                    completion_trigger=$1,
                    completed_at=NOW(),
                    row_version=row_version+1,
                    updated_at=NOW()
                WHERE uuid=$2
            `, string(trigger), jobUUID)
			return err
		})
}

func (r *jobRepo) MarkDisputedAtomic(ctx context.Context, jobUUID uuid.UUID, reason string) (*models.Job, error) {
	return r.withJobTx(ctx, jobUUID,
		[]models.JobStatusType{models.JobStatusDelivered},
		func(tx pgx.Tx, job *models.Job) error {
			_, err := tx.Exec(ctx, `
                UPDATE jobs
                SET status='DISPUTED',
                    dispute_reason=$1,
                    row_version=row_version+1,
                    updated_at=NOW()
                WHERE uuid=$2
            `, reason, jobUUID)
			return err
		})
}

func (r *jobRepo) MarkRevisionRequestedAtomic(ctx context.Context, jobUUID uuid.UUID, feedback string) (*models.Job, error) {
	return r.withJobTx(ctx, jobUUID,
		[]models.JobStatusType{models.JobStatusDelivered},
		func(tx pgx.Tx, job *models.Job) error {
			_, err := tx.Exec(ctx, `
                UPDATE jobs
                SET status='IN_PROGRESS',
                    revision_feedback=$1,
                    row_version=row_version+1,
                    updated_at=NOW()
                WHERE uuid=$2
            `, feedback, jobUUID)
			return err
		})
}

func (r *jobRepo) MarkRefundedAtomic(ctx context.Context, jobUUID uuid.UUID, refundTxHash string) (*models.Job, error) {
	return r.withJobTx(ctx, jobUUID,
		[]models.JobStatusType{models.JobStatusDisputed},
		func(tx pgx.Tx, job *models.Job) error {
			_, err := tx.Exec(ctx, `
                UPDATE jobs
                SET status='REFUNDED',
                    refund_tx_hash=$1,
                    completion_trigger='dispute_resolved',
                    completed_at=NOW(),
                    row_version=row_version+1,
                    updated_at=NOW()
                WHERE uuid=$2
            `, refundTxHash, jobUUID)
			return err
		})
}

func (r *jobRepo) SetPayoutTxHash(ctx context.Context, jobUUID uuid.UUID, payoutTxHash string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE jobs
        SET payout_tx_hash=$1,
            updated_at=NOW()
        WHERE uuid=$2
    `, payoutTxHash, jobUUID)
	return err
}

func (r *jobRepo) ListDeliveredBefore(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	rows, err := r.db.Query(ctx, baseSelectJob()+`
        WHERE status='DELIVERED'
          AND delivered_at <= $1
        ORDER BY delivered_at
    `, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

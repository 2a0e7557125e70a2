package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/gigmesh/marketplace/internal/models"
)

type RequesterRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Requester, error)
}

type requesterRepo struct {
	db DB
}

func NewRequesterRepository(db DB) RequesterRepository {
	return &requesterRepo{db: db}
}

func (r *requesterRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Requester, error) {
	row := r.db.QueryRow(ctx, `
        SELECT id, name, email, created_at, updated_at
        FROM requesters
        WHERE id=$1
    `, id)

	var req models.Requester
	err := row.Scan(&req.ID, &req.Name, &req.Email, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/gigmesh/marketplace/internal/models"
)

type SkillRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Skill, error)
}

type skillRepo struct {
	db DB
}

func NewSkillRepository(db DB) SkillRepository {
	return &skillRepo{db: db}
}

func (r *skillRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Skill, error) {
	row := r.db.QueryRow(ctx, `
        SELECT id, agent_id, service_key, title, price_usd, active,
               created_at, updated_at
        FROM skills
        WHERE id=$1
    `, id)

	var s models.Skill
	err := row.Scan(
		&s.ID,
		&s.AgentID,
		&s.ServiceKey,
		&s.Title,
		&s.PriceUSD,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

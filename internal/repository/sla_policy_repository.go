package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-workflow/internal/domain"
)

// SLAPolicyRepository persists SLA policies.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	List(ctx context.Context) ([]domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository instantiates the repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (name, response_hours, resolution_hours)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.ResponseHours,
		policy.ResolutionHours,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, name, response_hours, resolution_hours, created_at, updated_at
        FROM sla_policies WHERE id=$1`

	var policy domain.SLAPolicy
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&policy.ID,
		&policy.Name,
		&policy.ResponseHours,
		&policy.ResolutionHours,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	const query = `
        SELECT id, name, response_hours, resolution_hours, created_at, updated_at
        FROM sla_policies ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var policy domain.SLAPolicy
		if err := rows.Scan(
			&policy.ID,
			&policy.Name,
			&policy.ResponseHours,
			&policy.ResolutionHours,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

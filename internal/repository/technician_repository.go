package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-workflow/internal/domain"
)

// TechnicianRepository handles persistence for technicians. It doubles as
// the workflow's technician directory for assignment checks.
type TechnicianRepository interface {
	Create(ctx context.Context, technician *domain.Technician) error
	Update(ctx context.Context, technician *domain.Technician) error
	GetByID(ctx context.Context, id string) (*domain.Technician, error)
	GetByEmail(ctx context.Context, email string) (*domain.Technician, error)
	IsActiveTechnician(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter TechnicianFilter) ([]domain.Technician, error)
}

// TechnicianFilter defines query params for technician listing.
type TechnicianFilter struct {
	Role   *domain.StaffRole
	Active *bool
	Limit  int
	Offset int
}

type technicianRepository struct {
	pool *pgxpool.Pool
}

// NewTechnicianRepository instantiates the repository.
func NewTechnicianRepository(pool *pgxpool.Pool) TechnicianRepository {
	return &technicianRepository{pool: pool}
}

func (r *technicianRepository) Create(ctx context.Context, technician *domain.Technician) error {
	const query = `
        INSERT INTO technicians (name, email, password_hash, role, skills, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		technician.Name,
		technician.Email,
		technician.PasswordHash,
		technician.Role,
		technician.Skills,
		technician.Active,
	).Scan(&technician.ID, &technician.CreatedAt, &technician.UpdatedAt)
}

func (r *technicianRepository) Update(ctx context.Context, technician *domain.Technician) error {
	const query = `
        UPDATE technicians
        SET name=$1, email=$2, password_hash=$3, role=$4, skills=$5, active_flag=$6, updated_at=NOW()
        WHERE id=$7`

	cmd, err := r.pool.Exec(ctx, query,
		technician.Name,
		technician.Email,
		technician.PasswordHash,
		technician.Role,
		technician.Skills,
		technician.Active,
		technician.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *technicianRepository) GetByID(ctx context.Context, id string) (*domain.Technician, error) {
	const query = `
        SELECT id, name, email, password_hash, role, skills, active_flag, created_at, updated_at
        FROM technicians WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *technicianRepository) GetByEmail(ctx context.Context, email string) (*domain.Technician, error) {
	const query = `
        SELECT id, name, email, password_hash, role, skills, active_flag, created_at, updated_at
        FROM technicians WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *technicianRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Technician, error) {
	var technician domain.Technician
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&technician.ID,
		&technician.Name,
		&technician.Email,
		&technician.PasswordHash,
		&technician.Role,
		&technician.Skills,
		&technician.Active,
		&technician.CreatedAt,
		&technician.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &technician, nil
}

func (r *technicianRepository) IsActiveTechnician(ctx context.Context, id string) (bool, error) {
	const query = `SELECT active_flag FROM technicians WHERE id=$1`
	var active bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&active); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return active, nil
}

func (r *technicianRepository) List(ctx context.Context, filter TechnicianFilter) ([]domain.Technician, error) {
	query := `
        SELECT id, name, email, password_hash, role, skills, active_flag, created_at, updated_at
        FROM technicians`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Technician
	for rows.Next() {
		var technician domain.Technician
		if err := rows.Scan(
			&technician.ID,
			&technician.Name,
			&technician.Email,
			&technician.PasswordHash,
			&technician.Role,
			&technician.Skills,
			&technician.Active,
			&technician.CreatedAt,
			&technician.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, technician)
	}
	return result, rows.Err()
}

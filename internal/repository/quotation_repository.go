package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-workflow/internal/domain"
)

// QuotationRepository reads the quotation projection maintained by the
// billing system. Writes happen there, not here.
type QuotationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Quotation, error)
	StatusForTicket(ctx context.Context, ticketID string) (domain.QuotationStatus, error)
}

type quotationRepository struct {
	pool *pgxpool.Pool
}

// NewQuotationRepository instantiates the repository.
func NewQuotationRepository(pool *pgxpool.Pool) QuotationRepository {
	return &quotationRepository{pool: pool}
}

func (r *quotationRepository) GetByID(ctx context.Context, id string) (*domain.Quotation, error) {
	const query = `
        SELECT id, ticket_id, status, total_amount, currency, created_at, updated_at
        FROM quotations WHERE id=$1`

	var quotation domain.Quotation
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&quotation.ID,
		&quotation.TicketID,
		&quotation.Status,
		&quotation.TotalAmount,
		&quotation.Currency,
		&quotation.CreatedAt,
		&quotation.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &quotation, nil
}

func (r *quotationRepository) StatusForTicket(ctx context.Context, ticketID string) (domain.QuotationStatus, error) {
	const query = `
        SELECT status FROM quotations WHERE ticket_id=$1
        ORDER BY created_at DESC LIMIT 1`

	var status domain.QuotationStatus
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(&status); err != nil {
		if err == pgx.ErrNoRows {
			return domain.QuotationStatusNone, nil
		}
		return domain.QuotationStatusNone, err
	}
	return status, nil
}

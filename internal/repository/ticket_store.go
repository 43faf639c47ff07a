package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-workflow/internal/domain"
	"github.com/spec-kit/service-workflow/internal/workflow"
)

// TicketStore persists the ticket aggregate together with its status
// history. Save is guarded by the optimistic version column; a concurrent
// writer surfaces as workflow.ErrVersionConflict.
type TicketStore interface {
	workflow.TicketStore
	ListOpenWithPolicy(ctx context.Context, limit int) ([]domain.ServiceTicket, error)
}

type ticketStore struct {
	pool *pgxpool.Pool
}

// NewTicketStore instantiates the store.
func NewTicketStore(pool *pgxpool.Pool) TicketStore {
	return &ticketStore{pool: pool}
}

const ticketColumns = `
        id, ticket_number, status, priority, customer_name, device_description, problem_reported,
        assigned_to, resolution_path, warranty_type,
        diagnosis, amc_repair, oem_repair, device_pickup, device_delivery,
        quotation_id, resolution_summary, cancellation_reason, sla_policy_id,
        first_response_at, parts_hold_started_at, parts_hold_seconds, version,
        created_at, updated_at, completed_at, closed_at`

func (s *ticketStore) Create(ctx context.Context, ticket *domain.ServiceTicket, entry *domain.StatusHistoryEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
        INSERT INTO tickets (ticket_number, status, priority, customer_name, device_description, problem_reported,
                             quotation_id, sla_policy_id, parts_hold_seconds, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,1)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		ticket.TicketNumber,
		ticket.Status,
		ticket.Priority,
		ticket.CustomerName,
		ticket.DeviceDescription,
		ticket.ProblemReported,
		ticket.QuotationID,
		ticket.SLAPolicyID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return err
	}
	ticket.Version = 1

	entry.TicketID = ticket.ID
	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *ticketStore) Load(ctx context.Context, id string) (*domain.ServiceTicket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	const historyQuery = `
        SELECT id, ticket_id, action, from_status, to_status, changed_by, notes, created_at
        FROM ticket_status_history WHERE ticket_id=$1 ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, historyQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Action,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.ChangedBy,
			&entry.Notes,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		ticket.History = append(ticket.History, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *ticketStore) Save(ctx context.Context, ticket *domain.ServiceTicket, entry *domain.StatusHistoryEntry, expectedVersion int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
        UPDATE tickets SET
            status=$1, priority=$2, assigned_to=$3, resolution_path=$4, warranty_type=$5,
            diagnosis=$6, amc_repair=$7, oem_repair=$8, device_pickup=$9, device_delivery=$10,
            quotation_id=$11, resolution_summary=$12, cancellation_reason=$13, sla_policy_id=$14,
            first_response_at=$15, parts_hold_started_at=$16, parts_hold_seconds=$17,
            updated_at=$18, completed_at=$19, closed_at=$20, version=version+1
        WHERE id=$21 AND version=$22`
	cmd, err := tx.Exec(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedTo,
		ticket.ResolutionPath,
		ticket.WarrantyType,
		ticket.Diagnosis,
		ticket.AMCRepair,
		ticket.OEMRepair,
		ticket.DevicePickup,
		ticket.DeviceDelivery,
		ticket.QuotationID,
		ticket.ResolutionSummary,
		ticket.CancellationReason,
		ticket.SLAPolicyID,
		ticket.FirstResponseAt,
		ticket.PartsHoldStartedAt,
		ticket.PartsHoldSeconds,
		ticket.UpdatedAt,
		ticket.CompletedAt,
		ticket.ClosedAt,
		ticket.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return workflow.ErrVersionConflict
	}

	if entry != nil {
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	ticket.Version = expectedVersion + 1
	return nil
}

// ListOpenWithPolicy returns non-terminal tickets that carry an SLA policy,
// oldest first. Used by the SLA sweep worker.
func (s *ticketStore) ListOpenWithPolicy(ctx context.Context, limit int) ([]domain.ServiceTicket, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE sla_policy_id IS NOT NULL AND status NOT IN ('CLOSED','CANCELLED')
        ORDER BY created_at
        LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ServiceTicket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func insertHistory(ctx context.Context, tx pgx.Tx, entry *domain.StatusHistoryEntry) error {
	const query = `
        INSERT INTO ticket_status_history (ticket_id, action, from_status, to_status, changed_by, notes, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return tx.QueryRow(ctx, query,
		entry.TicketID,
		entry.Action,
		entry.FromStatus,
		entry.ToStatus,
		entry.ChangedBy,
		entry.Notes,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func scanTicket(row pgx.Row) (*domain.ServiceTicket, error) {
	var ticket domain.ServiceTicket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CustomerName,
		&ticket.DeviceDescription,
		&ticket.ProblemReported,
		&ticket.AssignedTo,
		&ticket.ResolutionPath,
		&ticket.WarrantyType,
		&ticket.Diagnosis,
		&ticket.AMCRepair,
		&ticket.OEMRepair,
		&ticket.DevicePickup,
		&ticket.DeviceDelivery,
		&ticket.QuotationID,
		&ticket.ResolutionSummary,
		&ticket.CancellationReason,
		&ticket.SLAPolicyID,
		&ticket.FirstResponseAt,
		&ticket.PartsHoldStartedAt,
		&ticket.PartsHoldSeconds,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.CompletedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

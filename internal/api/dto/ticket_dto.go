package dto

import (
	"time"

	"github.com/spec-kit/service-workflow/internal/domain"
	"github.com/spec-kit/service-workflow/internal/sla"
	"github.com/spec-kit/service-workflow/internal/workflow"
)

// CreateTicketRequest payload for intake.
type CreateTicketRequest struct {
	CustomerName      string                `json:"customer_name"`
	DeviceDescription string                `json:"device_description"`
	ProblemReported   string                `json:"problem_reported"`
	Priority          domain.TicketPriority `json:"priority"`
	SLAPolicyID       *string               `json:"sla_policy_id"`
	QuotationID       *string               `json:"quotation_id"`
}

// ApplyActionRequest payload for POST /tickets/:id/actions/:action. The
// field set is the union of all action payloads; each action reads only
// what it needs.
type ApplyActionRequest = workflow.ActionPayload

// TicketResponse provides the full aggregate plus the derived SLA view.
type TicketResponse struct {
	ID           string                `json:"id"`
	TicketNumber string                `json:"ticket_number"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`

	CustomerName      string `json:"customer_name"`
	DeviceDescription string `json:"device_description"`
	ProblemReported   string `json:"problem_reported"`

	AssignedTo     *string                `json:"assigned_to"`
	ResolutionPath *domain.ResolutionPath `json:"resolution_path"`
	WarrantyType   *domain.WarrantyType   `json:"warranty_type"`

	Diagnosis      *domain.Diagnosis      `json:"diagnosis,omitempty"`
	AMCRepair      *domain.AMCRepair      `json:"amc_repair,omitempty"`
	OEMRepair      *domain.OEMRepair      `json:"oem_repair,omitempty"`
	DevicePickup   *domain.DevicePickup   `json:"device_pickup,omitempty"`
	DeviceDelivery *domain.DeviceDelivery `json:"device_delivery,omitempty"`

	QuotationID        *string `json:"quotation_id,omitempty"`
	ResolutionSummary  *string `json:"resolution_summary,omitempty"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`

	SLAPolicyID     *string    `json:"sla_policy_id,omitempty"`
	FirstResponseAt *time.Time `json:"first_response_at,omitempty"`

	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	History []StatusHistoryEntryResponse `json:"history"`
	SLA     *sla.Snapshot                `json:"sla,omitempty"`
}

// StatusHistoryEntryResponse represents one audit entry.
type StatusHistoryEntryResponse struct {
	ID         string              `json:"id"`
	Action     string              `json:"action"`
	FromStatus domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus `json:"to_status"`
	ChangedBy  string              `json:"changed_by"`
	Notes      string              `json:"notes,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// NewTicketResponse maps an engine result to the wire shape.
func NewTicketResponse(result *workflow.Result) TicketResponse {
	ticket := result.Ticket
	resp := TicketResponse{
		ID:                 ticket.ID,
		TicketNumber:       ticket.TicketNumber,
		Status:             ticket.Status,
		Priority:           ticket.Priority,
		CustomerName:       ticket.CustomerName,
		DeviceDescription:  ticket.DeviceDescription,
		ProblemReported:    ticket.ProblemReported,
		AssignedTo:         ticket.AssignedTo,
		ResolutionPath:     ticket.ResolutionPath,
		WarrantyType:       ticket.WarrantyType,
		Diagnosis:          ticket.Diagnosis,
		AMCRepair:          ticket.AMCRepair,
		OEMRepair:          ticket.OEMRepair,
		DevicePickup:       ticket.DevicePickup,
		DeviceDelivery:     ticket.DeviceDelivery,
		QuotationID:        ticket.QuotationID,
		ResolutionSummary:  ticket.ResolutionSummary,
		CancellationReason: ticket.CancellationReason,
		SLAPolicyID:        ticket.SLAPolicyID,
		FirstResponseAt:    ticket.FirstResponseAt,
		Version:            ticket.Version,
		CreatedAt:          ticket.CreatedAt,
		UpdatedAt:          ticket.UpdatedAt,
		CompletedAt:        ticket.CompletedAt,
		ClosedAt:           ticket.ClosedAt,
		SLA:                result.SLA,
	}
	resp.History = make([]StatusHistoryEntryResponse, 0, len(ticket.History))
	for _, entry := range ticket.History {
		resp.History = append(resp.History, StatusHistoryEntryResponse{
			ID:         entry.ID,
			Action:     entry.Action,
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			ChangedBy:  entry.ChangedBy,
			Notes:      entry.Notes,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return resp
}

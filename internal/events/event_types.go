package events

import (
	"time"

	"github.com/spec-kit/service-workflow/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketTransitioned EventType = "ticket_transitioned"
	// EventQuotationUnblocked signals that an approved quotation is no
	// longer holding up a ticket (resume or completion from parts hold).
	EventQuotationUnblocked EventType = "quotation_unblocked"
	EventSLAWarning         EventType = "sla_warning"
	EventSLABreached        EventType = "sla_breached"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by the workflow engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string                `json:"ticket_number"`
	Priority     domain.TicketPriority `json:"priority"`
	CustomerName string                `json:"customer_name"`
}

// TicketTransitionedPayload payload.
type TicketTransitionedPayload struct {
	Action     string              `json:"action"`
	FromStatus domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus `json:"to_status"`
	Notes      string              `json:"notes,omitempty"`
}

// QuotationUnblockedPayload payload.
type QuotationUnblockedPayload struct {
	QuotationID *string `json:"quotation_id,omitempty"`
	Action      string  `json:"action"`
}

// SLAAlertPayload payload for warning and breach events.
type SLAAlertPayload struct {
	TicketNumber     string              `json:"ticket_number"`
	Status           domain.TicketStatus `json:"status"`
	ResponseDueAt    *time.Time          `json:"response_due_at,omitempty"`
	ResolutionDueAt  *time.Time          `json:"resolution_due_at,omitempty"`
	ResponseBreach   bool                `json:"response_breached"`
	ResolutionBreach bool                `json:"resolution_breached"`
}

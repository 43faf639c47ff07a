package domain

import "time"

// QuotationStatus mirrors the externally owned quotation lifecycle.
// Read-only to the workflow engine; guards compare against it.
type QuotationStatus string

const (
	QuotationStatusDraft    QuotationStatus = "DRAFT"
	QuotationStatusSent     QuotationStatus = "SENT"
	QuotationStatusApproved QuotationStatus = "APPROVED"
	QuotationStatusRejected QuotationStatus = "REJECTED"

	// QuotationStatusNone is reported when no quotation exists for a ticket.
	QuotationStatusNone QuotationStatus = ""
)

// Quotation is a read model over the billing system's quotation record.
// The workflow never mutates it; only its status gates transitions.
type Quotation struct {
	ID          string
	TicketID    string
	Status      QuotationStatus
	TotalAmount int64
	Currency    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

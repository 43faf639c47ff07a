package domain

import "time"

// TicketStatus enumerates lifecycle states for service tickets.
type TicketStatus string

const (
	TicketStatusNew               TicketStatus = "NEW"
	TicketStatusPendingAcceptance TicketStatus = "PENDING_ACCEPTANCE"
	TicketStatusAssigned          TicketStatus = "ASSIGNED"
	TicketStatusInProgress        TicketStatus = "IN_PROGRESS"
	TicketStatusPendingParts      TicketStatus = "PENDING_PARTS"
	TicketStatusDevicePickup      TicketStatus = "DEVICE_PICKUP"
	TicketStatusDeviceUnderRepair TicketStatus = "DEVICE_UNDER_REPAIR"
	TicketStatusReadyForDelivery  TicketStatus = "READY_FOR_DELIVERY"
	TicketStatusOutForDelivery    TicketStatus = "OUT_FOR_DELIVERY"
	TicketStatusCompleted         TicketStatus = "COMPLETED"
	TicketStatusClosed            TicketStatus = "CLOSED"
	TicketStatusCancelled         TicketStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketPriority enumerates urgency. Priority never gates transitions.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// ResolutionPath is the route chosen after diagnosis. Set once, immutable.
type ResolutionPath string

const (
	PathResolvedOnVisit    ResolutionPath = "RESOLVED_ON_VISIT"
	PathPendingForPart     ResolutionPath = "PENDING_FOR_PART"
	PathDeviceToBackoffice ResolutionPath = "DEVICE_TO_BACKOFFICE"
)

// Valid reports whether the path is a known variant.
func (p ResolutionPath) Valid() bool {
	switch p {
	case PathResolvedOnVisit, PathPendingForPart, PathDeviceToBackoffice:
		return true
	}
	return false
}

// WarrantyType classifies coverage once a device enters back-office repair.
type WarrantyType string

const (
	WarrantyUnderAMC      WarrantyType = "UNDER_AMC"
	WarrantyUnderOEM      WarrantyType = "UNDER_OEM"
	WarrantyOutOfWarranty WarrantyType = "OUT_OF_WARRANTY"
)

// Valid reports whether the warranty type is a known variant.
func (w WarrantyType) Valid() bool {
	switch w {
	case WarrantyUnderAMC, WarrantyUnderOEM, WarrantyOutOfWarranty:
		return true
	}
	return false
}

// ServiceTicket is the aggregate root for a device-repair ticket.
// Status is the single source of truth for workflow position; it is
// only ever written by the workflow engine.
type ServiceTicket struct {
	ID           string
	TicketNumber string
	Status       TicketStatus
	Priority     TicketPriority

	CustomerName      string
	DeviceDescription string
	ProblemReported   string

	AssignedTo     *string
	ResolutionPath *ResolutionPath
	WarrantyType   *WarrantyType

	Diagnosis      *Diagnosis
	AMCRepair      *AMCRepair
	OEMRepair      *OEMRepair
	DevicePickup   *DevicePickup
	DeviceDelivery *DeviceDelivery

	// QuotationID references an externally owned quotation. The workflow
	// engine reads its status through the quotation service and never
	// writes it.
	QuotationID *string

	ResolutionSummary  *string
	CancellationReason *string

	SLAPolicyID     *string
	FirstResponseAt *time.Time

	// Parts-hold accounting for the SLA clock. PartsHoldStartedAt is set
	// while the ticket sits in PENDING_PARTS; PartsHoldSeconds accumulates
	// completed hold intervals across pause/resume cycles.
	PartsHoldStartedAt *time.Time
	PartsHoldSeconds   int64

	// Version backs the optimistic-concurrency check on save.
	Version int64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	ClosedAt    *time.Time

	History []StatusHistoryEntry
}

// PausedDuration returns the cumulative time spent in PENDING_PARTS,
// including the in-flight hold when the ticket is currently paused.
func (t *ServiceTicket) PausedDuration(now time.Time) time.Duration {
	total := time.Duration(t.PartsHoldSeconds) * time.Second
	if t.PartsHoldStartedAt != nil && now.After(*t.PartsHoldStartedAt) {
		total += now.Sub(*t.PartsHoldStartedAt)
	}
	return total
}

package workflow

import (
	"context"
	"time"

	"github.com/spec-kit/service-workflow/internal/domain"
)

// Options tune policy-dependent branches of the transition table.
type Options struct {
	// RequireAcceptance routes assign through PENDING_ACCEPTANCE until the
	// technician confirms via accept_assignment.
	RequireAcceptance bool
	// RequireRepairEvidence makes AMC/OEM completion require at least one
	// stored attachment for the ticket.
	RequireRepairEvidence bool
}

// guardFunc evaluates an action's preconditions. It returns the names of
// missing or invalid fields; a non-empty list fails the action with
// GUARD_NOT_SATISFIED. An error means a collaborator could not be reached.
type guardFunc func(ctx context.Context, g *guardInput) ([]string, error)

// resolveFunc computes the resulting status. nil means the action keeps the
// ticket in its current status (record-attaching actions).
type resolveFunc func(t *domain.ServiceTicket, p ActionPayload, opts Options) domain.TicketStatus

// mutateFunc applies the action's changes to the aggregate. Status itself
// is written centrally by the engine, never here.
type mutateFunc func(t *domain.ServiceTicket, p ActionPayload, actor Actor, now time.Time)

type transition struct {
	from    []domain.TicketStatus
	guard   guardFunc
	resolve resolveFunc
	mutate  mutateFunc
}

func staticTarget(status domain.TicketStatus) resolveFunc {
	return func(*domain.ServiceTicket, ActionPayload, Options) domain.TicketStatus {
		return status
	}
}

// transitionTable is the single authoritative source for action legality:
// state x action -> guard -> state.
var transitionTable = map[Action]transition{
	ActionAssign: {
		from:    []domain.TicketStatus{domain.TicketStatusNew, domain.TicketStatusPendingAcceptance},
		guard:   guardAssign,
		resolve: resolveAssign,
		mutate:  mutateAssign,
	},
	// Reassignment is only legal before a technician has accepted and begun
	// work; afterwards hand-offs must be visible status transitions.
	ActionReassign: {
		from:    []domain.TicketStatus{domain.TicketStatusNew, domain.TicketStatusPendingAcceptance},
		guard:   guardAssign,
		resolve: resolveAssign,
		mutate:  mutateAssign,
	},
	ActionAcceptAssignment: {
		from:    []domain.TicketStatus{domain.TicketStatusPendingAcceptance},
		guard:   guardAcceptAssignment,
		resolve: staticTarget(domain.TicketStatusAssigned),
	},
	ActionStartWork: {
		from:    []domain.TicketStatus{domain.TicketStatusAssigned},
		guard:   guardStartWork,
		resolve: staticTarget(domain.TicketStatusInProgress),
	},
	ActionMarkPendingParts: {
		from:    []domain.TicketStatus{domain.TicketStatusInProgress},
		resolve: staticTarget(domain.TicketStatusPendingParts),
	},
	ActionResumeFromParts: {
		from:    []domain.TicketStatus{domain.TicketStatusPendingParts},
		guard:   guardQuotationApproved,
		resolve: staticTarget(domain.TicketStatusInProgress),
	},
	ActionSubmitDiagnosis: {
		from:   []domain.TicketStatus{domain.TicketStatusInProgress},
		guard:  guardSubmitDiagnosis,
		mutate: mutateSubmitDiagnosis,
	},
	ActionSelectPath: {
		from:    []domain.TicketStatus{domain.TicketStatusInProgress},
		guard:   guardSelectPath,
		resolve: resolveSelectPath,
		mutate:  mutateSelectPath,
	},
	ActionRecordPickup: {
		from:    []domain.TicketStatus{domain.TicketStatusDevicePickup},
		guard:   guardRecordPickup,
		resolve: staticTarget(domain.TicketStatusDeviceUnderRepair),
		mutate:  mutateRecordPickup,
	},
	ActionRecordWarrantyDecision: {
		from:   []domain.TicketStatus{domain.TicketStatusDeviceUnderRepair},
		guard:  guardWarrantyDecision,
		mutate: mutateWarrantyDecision,
	},
	ActionStartAMCRepair: {
		from:   []domain.TicketStatus{domain.TicketStatusDeviceUnderRepair},
		guard:  guardStartAMCRepair,
		mutate: mutateStartAMCRepair,
	},
	ActionUpdateAMCRepair: {
		from:   []domain.TicketStatus{domain.TicketStatusDeviceUnderRepair},
		guard:  guardUpdateAMCRepair,
		mutate: mutateUpdateAMCRepair,
	},
	ActionCompleteAMCRepair: {
		from:    []domain.TicketStatus{domain.TicketStatusDeviceUnderRepair},
		guard:   guardCompleteAMCRepair,
		resolve: staticTarget(domain.TicketStatusReadyForDelivery),
		mutate:  mutateCompleteAMCRepair,
	},
	ActionRecordOEMRepair: {
		from:   []domain.TicketStatus{domain.TicketStatusDeviceUnderRepair},
		guard:  guardRecordOEMRepair,
		mutate: mutateRecordOEMRepair,
	},
	ActionUpdateOEMRepair: {
		from:   []domain.TicketStatus{domain.TicketStatusDeviceUnderRepair},
		guard:  guardUpdateOEMRepair,
		mutate: mutateUpdateOEMRepair,
	},
	ActionCompleteOEMRepair: {
		from:    []domain.TicketStatus{domain.TicketStatusDeviceUnderRepair},
		guard:   guardCompleteOEMRepair,
		resolve: staticTarget(domain.TicketStatusReadyForDelivery),
		mutate:  mutateCompleteOEMRepair,
	},
	ActionDispatchDelivery: {
		from:    []domain.TicketStatus{domain.TicketStatusReadyForDelivery},
		resolve: staticTarget(domain.TicketStatusOutForDelivery),
	},
	ActionRecordDelivery: {
		from:    []domain.TicketStatus{domain.TicketStatusReadyForDelivery, domain.TicketStatusOutForDelivery},
		guard:   guardRecordDelivery,
		resolve: staticTarget(domain.TicketStatusCompleted),
		mutate:  mutateRecordDelivery,
	},
	ActionComplete: {
		from:    []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusPendingParts},
		guard:   guardComplete,
		resolve: staticTarget(domain.TicketStatusCompleted),
		mutate:  mutateComplete,
	},
	ActionClose: {
		from:    []domain.TicketStatus{domain.TicketStatusCompleted},
		resolve: staticTarget(domain.TicketStatusClosed),
	},
	// Cancellation is barred from terminal states and from states with
	// active work or a committed completion (IN_PROGRESS, PENDING_PARTS,
	// COMPLETED).
	ActionCancel: {
		from: []domain.TicketStatus{
			domain.TicketStatusNew,
			domain.TicketStatusPendingAcceptance,
			domain.TicketStatusAssigned,
			domain.TicketStatusDevicePickup,
			domain.TicketStatusDeviceUnderRepair,
			domain.TicketStatusReadyForDelivery,
			domain.TicketStatusOutForDelivery,
		},
		guard:   guardCancel,
		resolve: staticTarget(domain.TicketStatusCancelled),
		mutate:  mutateCancel,
	},
}

func resolveAssign(_ *domain.ServiceTicket, _ ActionPayload, opts Options) domain.TicketStatus {
	if opts.RequireAcceptance {
		return domain.TicketStatusPendingAcceptance
	}
	return domain.TicketStatusAssigned
}

func resolveSelectPath(_ *domain.ServiceTicket, p ActionPayload, _ Options) domain.TicketStatus {
	switch p.Path {
	case domain.PathResolvedOnVisit:
		return domain.TicketStatusCompleted
	case domain.PathPendingForPart:
		return domain.TicketStatusPendingParts
	default:
		return domain.TicketStatusDevicePickup
	}
}

func statusIn(status domain.TicketStatus, candidates []domain.TicketStatus) bool {
	for _, candidate := range candidates {
		if candidate == status {
			return true
		}
	}
	return false
}

package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/service-workflow/internal/domain"
	"github.com/spec-kit/service-workflow/internal/events"
	"github.com/spec-kit/service-workflow/internal/sla"
	apperrors "github.com/spec-kit/service-workflow/pkg/util/errorutil"
)

// ErrVersionConflict is returned by a TicketStore when the expected version
// no longer matches: a concurrent apply won the race.
var ErrVersionConflict = errors.New("ticket version conflict")

// ErrLockHeld is returned by a TicketLocker when another apply currently
// holds the ticket.
var ErrLockHeld = errors.New("ticket lock held")

// TicketStore persists the aggregate. Save must write the ticket and the
// history entry as one transactional unit guarded by expectedVersion; a nil
// entry skips the history append. Create fills generated fields (ID,
// timestamps) and persists the first history entry atomically.
type TicketStore interface {
	Create(ctx context.Context, ticket *domain.ServiceTicket, entry *domain.StatusHistoryEntry) error
	Load(ctx context.Context, id string) (*domain.ServiceTicket, error)
	Save(ctx context.Context, ticket *domain.ServiceTicket, entry *domain.StatusHistoryEntry, expectedVersion int64) error
}

// QuotationReader exposes the externally owned quotation status for a
// ticket. QuotationStatusNone is reported when no quotation exists.
type QuotationReader interface {
	StatusForTicket(ctx context.Context, ticketID string) (domain.QuotationStatus, error)
}

// TechnicianDirectory validates technician references before assignment.
type TechnicianDirectory interface {
	IsActiveTechnician(ctx context.Context, id string) (bool, error)
}

// AttachmentCounter reports stored attachments per ticket for the
// repair-evidence guard.
type AttachmentCounter interface {
	CountByTicket(ctx context.Context, ticketID string) (int, error)
}

// PolicyReader loads SLA policies for the derived view.
type PolicyReader interface {
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
}

// TicketLocker serializes applies per ticket id. Acquire returns a release
// func, or ErrLockHeld when another caller holds the ticket.
type TicketLocker interface {
	Acquire(ctx context.Context, ticketID string) (func(), error)
}

// Dependencies bundles collaborators for the engine.
type Dependencies struct {
	Store       TicketStore
	Quotations  QuotationReader
	Directory   TechnicianDirectory
	Attachments AttachmentCounter
	Policies    PolicyReader
	Locker      TicketLocker
	Dispatcher  events.Dispatcher
	Clock       *sla.Clock
	Logger      *zap.Logger
}

// Engine is the workflow orchestrator: it validates a named action against
// the current state and guards, applies the transition, appends the history
// entry, and recomputes the SLA view. Callers never write status directly.
type Engine struct {
	store       TicketStore
	quotations  QuotationReader
	directory   TechnicianDirectory
	attachments AttachmentCounter
	policies    PolicyReader
	locker      TicketLocker
	dispatcher  events.Dispatcher
	clock       *sla.Clock
	logger      *zap.Logger
	opts        Options
	now         func() time.Time
}

// NewEngine constructs the orchestrator.
func NewEngine(deps Dependencies, opts Options) *Engine {
	engine := &Engine{
		store:       deps.Store,
		quotations:  deps.Quotations,
		directory:   deps.Directory,
		attachments: deps.Attachments,
		policies:    deps.Policies,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
		logger:      deps.Logger,
		opts:        opts,
		now:         time.Now,
	}
	if engine.locker == nil {
		engine.locker = NewMemoryLocker()
	}
	if engine.clock == nil {
		engine.clock = sla.NewClock()
	}
	if engine.logger == nil {
		engine.logger = zap.NewNop()
	}
	return engine
}

// Result pairs the updated aggregate with its derived SLA view.
type Result struct {
	Ticket *domain.ServiceTicket
	SLA    *sla.Snapshot
}

// IntakeInput describes ticket creation.
type IntakeInput struct {
	CustomerName      string
	DeviceDescription string
	ProblemReported   string
	Priority          domain.TicketPriority
	SLAPolicyID       *string
	QuotationID       *string
}

// Intake creates a ticket in NEW with the mandatory first history entry.
func (e *Engine) Intake(ctx context.Context, input IntakeInput, actor Actor) (*Result, error) {
	var missing []string
	if strings.TrimSpace(input.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if strings.TrimSpace(input.DeviceDescription) == "" {
		missing = append(missing, "device_description")
	}
	if strings.TrimSpace(input.ProblemReported) == "" {
		missing = append(missing, "problem_reported")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("required fields missing", map[string]any{"missing_fields": missing})
	}

	now := e.now()
	ticket := &domain.ServiceTicket{
		TicketNumber:      generateTicketNumber(),
		Status:            domain.TicketStatusNew,
		Priority:          input.Priority,
		CustomerName:      strings.TrimSpace(input.CustomerName),
		DeviceDescription: strings.TrimSpace(input.DeviceDescription),
		ProblemReported:   strings.TrimSpace(input.ProblemReported),
		SLAPolicyID:       input.SLAPolicyID,
		QuotationID:       input.QuotationID,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	entry := &domain.StatusHistoryEntry{
		Action:     string(ActionIntake),
		FromStatus: domain.TicketStatusNew,
		ToStatus:   domain.TicketStatusNew,
		ChangedBy:  actor.ID,
		CreatedAt:  now,
	}
	if err := e.store.Create(ctx, ticket, entry); err != nil {
		return nil, e.mapStoreError(err, ticket.ID)
	}
	ticket.History = append(ticket.History, *entry)

	e.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			Priority:     ticket.Priority,
			CustomerName: ticket.CustomerName,
		},
	})
	return &Result{Ticket: ticket, SLA: e.evaluateSLA(ctx, ticket)}, nil
}

// Apply executes a named action against a ticket. The whole unit is
// serialized per ticket id and committed atomically; side effects are
// dispatched only after the transition commits.
func (e *Engine) Apply(ctx context.Context, ticketID string, action Action, payload ActionPayload, actor Actor) (*Result, error) {
	rule, ok := transitionTable[action]
	if !ok {
		return nil, apperrors.NewValidationError("unknown action", map[string]any{"action": string(action)})
	}

	release, err := e.locker.Acquire(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, apperrors.NewConflict("ticket is being modified", map[string]any{"ticket_id": ticketID})
		}
		return nil, e.mapStoreError(err, ticketID)
	}
	if release != nil {
		defer release()
	}

	ticket, err := e.store.Load(ctx, ticketID)
	if err != nil {
		return nil, e.mapStoreError(err, ticketID)
	}
	if !statusIn(ticket.Status, rule.from) {
		return nil, apperrors.NewInvalidTransition(string(action), string(ticket.Status))
	}
	if rule.guard != nil {
		missing, err := rule.guard(ctx, &guardInput{
			ticket:      ticket,
			payload:     payload,
			quotations:  e.quotations,
			directory:   e.directory,
			attachments: e.attachments,
			opts:        e.opts,
		})
		if err != nil {
			return nil, e.mapStoreError(err, ticketID)
		}
		if len(missing) > 0 {
			return nil, apperrors.NewGuardNotSatisfied(string(action), missing)
		}
	}

	now := e.now()
	from := ticket.Status
	next := from
	if rule.resolve != nil {
		next = rule.resolve(ticket, payload, e.opts)
	}
	if rule.mutate != nil {
		rule.mutate(ticket, payload, actor, now)
	}
	if next != from {
		e.accountPartsHold(ticket, from, next, now)
		ticket.Status = next
		switch next {
		case domain.TicketStatusCompleted:
			ticket.CompletedAt = &now
		case domain.TicketStatusClosed:
			ticket.ClosedAt = &now
		}
	}
	ticket.UpdatedAt = now

	entry := &domain.StatusHistoryEntry{
		TicketID:   ticket.ID,
		Action:     string(action),
		FromStatus: from,
		ToStatus:   next,
		ChangedBy:  actor.ID,
		Notes:      strings.TrimSpace(payload.Notes),
		CreatedAt:  now,
	}
	if err := e.store.Save(ctx, ticket, entry, ticket.Version); err != nil {
		return nil, e.mapStoreError(err, ticketID)
	}
	ticket.History = append(ticket.History, *entry)

	e.publishTransition(ctx, ticket, action, from, next, actor, payload)
	return &Result{Ticket: ticket, SLA: e.evaluateSLA(ctx, ticket)}, nil
}

// Get returns the ticket with history and the derived SLA view.
func (e *Engine) Get(ctx context.Context, ticketID string) (*Result, error) {
	ticket, err := e.store.Load(ctx, ticketID)
	if err != nil {
		return nil, e.mapStoreError(err, ticketID)
	}
	return &Result{Ticket: ticket, SLA: e.evaluateSLA(ctx, ticket)}, nil
}

// RecordFirstResponse stores the first-response milestone reported by the
// messaging collaborator. Subsequent calls are no-ops.
func (e *Engine) RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) error {
	release, err := e.locker.Acquire(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return apperrors.NewConflict("ticket is being modified", map[string]any{"ticket_id": ticketID})
		}
		return e.mapStoreError(err, ticketID)
	}
	if release != nil {
		defer release()
	}

	ticket, err := e.store.Load(ctx, ticketID)
	if err != nil {
		return e.mapStoreError(err, ticketID)
	}
	if ticket.FirstResponseAt != nil {
		return nil
	}
	ticket.FirstResponseAt = &at
	ticket.UpdatedAt = e.now()
	if err := e.store.Save(ctx, ticket, nil, ticket.Version); err != nil {
		return e.mapStoreError(err, ticketID)
	}
	return nil
}

// accountPartsHold keeps the cumulative pause bookkeeping consistent as the
// ticket enters and leaves PENDING_PARTS, across any number of cycles.
func (e *Engine) accountPartsHold(ticket *domain.ServiceTicket, from, next domain.TicketStatus, now time.Time) {
	if from == domain.TicketStatusPendingParts && ticket.PartsHoldStartedAt != nil {
		if held := now.Sub(*ticket.PartsHoldStartedAt); held > 0 {
			ticket.PartsHoldSeconds += int64(held.Seconds())
		}
		ticket.PartsHoldStartedAt = nil
	}
	if next == domain.TicketStatusPendingParts {
		start := now
		ticket.PartsHoldStartedAt = &start
	}
}

func (e *Engine) evaluateSLA(ctx context.Context, ticket *domain.ServiceTicket) *sla.Snapshot {
	if ticket.SLAPolicyID == nil || e.policies == nil {
		return nil
	}
	policy, err := e.policies.GetByID(ctx, *ticket.SLAPolicyID)
	if err != nil {
		e.logger.Warn("sla policy lookup failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("policy_id", *ticket.SLAPolicyID),
			zap.Error(err))
		return nil
	}
	return e.clock.Evaluate(policy, ticket)
}

func (e *Engine) publishTransition(ctx context.Context, ticket *domain.ServiceTicket, action Action, from, next domain.TicketStatus, actor Actor, payload ActionPayload) {
	e.publish(ctx, events.Event{
		Type:     events.EventTicketTransitioned,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketTransitionedPayload{
			Action:     string(action),
			FromStatus: from,
			ToStatus:   next,
			Notes:      strings.TrimSpace(payload.Notes),
		},
	})
	if from == domain.TicketStatusPendingParts && (action == ActionResumeFromParts || action == ActionComplete) {
		e.publish(ctx, events.Event{
			Type:     events.EventQuotationUnblocked,
			TicketID: ticket.ID,
			Actor:    eventActor(actor),
			Payload: events.QuotationUnblockedPayload{
				QuotationID: ticket.QuotationID,
				Action:      string(action),
			},
		})
	}
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	_ = e.dispatcher.Publish(ctx, event)
}

func (e *Engine) mapStoreError(err error, ticketID string) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	case errors.Is(err, ErrVersionConflict):
		return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticketID})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.NewUnavailable(err)
	default:
		return apperrors.MapError(err)
	}
}

func eventActor(actor Actor) events.Actor {
	meta := events.Actor{Type: actor.Type}
	if actor.Type == domain.SubjectTypeStaff {
		id := actor.ID
		meta.StaffID = &id
	}
	return meta
}

func generateTicketNumber() string {
	return "SRV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/service-workflow/internal/config"
	"github.com/spec-kit/service-workflow/internal/domain"
	"github.com/spec-kit/service-workflow/internal/events"
	"github.com/spec-kit/service-workflow/internal/repository"
	"github.com/spec-kit/service-workflow/internal/sla"
)

// SLASweeper periodically scans open tickets against their SLA policies and
// publishes warning and breach events. Alerts are deduplicated per ticket
// and kind for the lifetime of the process; restarts may re-alert, which is
// acceptable for notification delivery.
type SLASweeper struct {
	store    repository.TicketStore
	policies repository.SLAPolicyRepository
	clock    *sla.Clock
	dispatch events.Dispatcher
	logger   *zap.Logger
	cfg      config.SLAConfig

	cron *cron.Cron

	mu      sync.Mutex
	alerted map[string]struct{}
}

// NewSLASweeper builds the sweeper.
func NewSLASweeper(
	store repository.TicketStore,
	policies repository.SLAPolicyRepository,
	clock *sla.Clock,
	dispatch events.Dispatcher,
	logger *zap.Logger,
	cfg config.SLAConfig,
) *SLASweeper {
	if clock == nil {
		clock = sla.NewClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLASweeper{
		store:    store,
		policies: policies,
		clock:    clock,
		dispatch: dispatch,
		logger:   logger,
		cfg:      cfg,
		alerted:  make(map[string]struct{}),
	}
}

// Start schedules the sweep on the configured cron expression.
func (s *SLASweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sla sweeper started", zap.String("schedule", s.cfg.SweepSchedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *SLASweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep evaluates all open tickets carrying an SLA policy once.
func (s *SLASweeper) Sweep(ctx context.Context) {
	tickets, err := s.store.ListOpenWithPolicy(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.Error("sla sweep listing failed", zap.Error(err))
		return
	}

	policyCache := make(map[string]*domain.SLAPolicy)
	for i := range tickets {
		ticket := &tickets[i]
		policy, err := s.policyFor(ctx, policyCache, *ticket.SLAPolicyID)
		if err != nil {
			s.logger.Warn("sla policy lookup failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("policy_id", *ticket.SLAPolicyID),
				zap.Error(err))
			continue
		}
		snap := s.clock.Evaluate(policy, ticket)
		if snap == nil {
			continue
		}
		s.emitAlerts(ctx, ticket, policy, snap)
	}
}

func (s *SLASweeper) policyFor(ctx context.Context, cache map[string]*domain.SLAPolicy, id string) (*domain.SLAPolicy, error) {
	if policy, ok := cache[id]; ok {
		return policy, nil
	}
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = policy
	return policy, nil
}

func (s *SLASweeper) emitAlerts(ctx context.Context, ticket *domain.ServiceTicket, policy *domain.SLAPolicy, snap *sla.Snapshot) {
	if snap.ResponseBreach || snap.ResolutionBreach {
		s.publishOnce(ctx, ticket, snap, events.EventSLABreached)
		return
	}
	if snap.IsPaused {
		return
	}
	if s.nearingDeadline(ticket, policy, snap) {
		s.publishOnce(ctx, ticket, snap, events.EventSLAWarning)
	}
}

// nearingDeadline reports whether the configured fraction of either budget
// has elapsed, counting pause-adjusted time for resolution.
func (s *SLASweeper) nearingDeadline(ticket *domain.ServiceTicket, policy *domain.SLAPolicy, snap *sla.Snapshot) bool {
	fraction := s.cfg.WarningFraction
	if fraction <= 0 || fraction >= 1 {
		fraction = 0.8
	}

	now := snap.EvaluatedAt
	if ticket.FirstResponseAt == nil {
		warnAt := ticket.CreatedAt.Add(time.Duration(float64(policy.ResponseBudget()) * fraction))
		if now.After(warnAt) {
			return true
		}
	}
	warnAt := ticket.CreatedAt.Add(time.Duration(float64(policy.ResolutionBudget()) * fraction)).Add(snap.PausedDuration)
	return now.After(warnAt)
}

func (s *SLASweeper) publishOnce(ctx context.Context, ticket *domain.ServiceTicket, snap *sla.Snapshot, eventType events.EventType) {
	key := ticket.ID + "|" + string(eventType)
	s.mu.Lock()
	if _, seen := s.alerted[key]; seen {
		s.mu.Unlock()
		return
	}
	s.alerted[key] = struct{}{}
	s.mu.Unlock()

	responseDue := snap.ResponseDueAt
	resolutionDue := snap.ResolutionDueAt
	_ = s.dispatch.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		Actor:     events.Actor{Type: domain.SubjectTypeSystem},
		Timestamp: snap.EvaluatedAt,
		Payload: events.SLAAlertPayload{
			TicketNumber:     ticket.TicketNumber,
			Status:           ticket.Status,
			ResponseDueAt:    &responseDue,
			ResolutionDueAt:  &resolutionDue,
			ResponseBreach:   snap.ResponseBreach,
			ResolutionBreach: snap.ResolutionBreach,
		},
	})
}

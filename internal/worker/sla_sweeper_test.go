package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/service-workflow/internal/config"
	"github.com/spec-kit/service-workflow/internal/domain"
	"github.com/spec-kit/service-workflow/internal/events"
	"github.com/spec-kit/service-workflow/internal/sla"
)

type fakeTicketStore struct {
	open []domain.ServiceTicket
	err  error
}

func (s *fakeTicketStore) Create(context.Context, *domain.ServiceTicket, *domain.StatusHistoryEntry) error {
	return nil
}

func (s *fakeTicketStore) Load(context.Context, string) (*domain.ServiceTicket, error) {
	return nil, pgx.ErrNoRows
}

func (s *fakeTicketStore) Save(context.Context, *domain.ServiceTicket, *domain.StatusHistoryEntry, int64) error {
	return nil
}

func (s *fakeTicketStore) ListOpenWithPolicy(context.Context, int) ([]domain.ServiceTicket, error) {
	return s.open, s.err
}

type fakePolicyRepo struct {
	policies map[string]*domain.SLAPolicy
}

func (r *fakePolicyRepo) Create(context.Context, *domain.SLAPolicy) error { return nil }

func (r *fakePolicyRepo) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	policy, ok := r.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return policy, nil
}

func (r *fakePolicyRepo) List(context.Context) ([]domain.SLAPolicy, error) { return nil, nil }

type capturingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *capturingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *capturingDispatcher) all() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event{}, d.events...)
}

func TestSLASweeper(t *testing.T) {
	created := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	policyID := "pol-std"
	policy := &domain.SLAPolicy{ID: policyID, Name: "standard", ResponseHours: 4, ResolutionHours: 48}

	newSweeper := func(now time.Time, tickets []domain.ServiceTicket) (*SLASweeper, *capturingDispatcher) {
		dispatcher := &capturingDispatcher{}
		sweeper := NewSLASweeper(
			&fakeTicketStore{open: tickets},
			&fakePolicyRepo{policies: map[string]*domain.SLAPolicy{policyID: policy}},
			sla.NewClockAt(func() time.Time { return now }),
			dispatcher,
			nil,
			config.SLAConfig{SweepBatchSize: 100, WarningFraction: 0.8},
		)
		return sweeper, dispatcher
	}

	openTicket := func(status domain.TicketStatus) domain.ServiceTicket {
		return domain.ServiceTicket{
			ID:           "tk-1",
			TicketNumber: "SRV-AAAA",
			Status:       status,
			SLAPolicyID:  &policyID,
			CreatedAt:    created,
		}
	}

	t.Run("quiet before warning threshold", func(t *testing.T) {
		sweeper, dispatcher := newSweeper(created.Add(1*time.Hour), []domain.ServiceTicket{openTicket(domain.TicketStatusInProgress)})
		sweeper.Sweep(context.Background())
		assert.Empty(t, dispatcher.all())
	})

	t.Run("warns past the response fraction", func(t *testing.T) {
		// 3.5h into a 4h response budget.
		sweeper, dispatcher := newSweeper(created.Add(3*time.Hour+30*time.Minute), []domain.ServiceTicket{openTicket(domain.TicketStatusInProgress)})
		sweeper.Sweep(context.Background())

		published := dispatcher.all()
		require.Len(t, published, 1)
		assert.Equal(t, events.EventSLAWarning, published[0].Type)
		assert.Equal(t, domain.SubjectTypeSystem, published[0].Actor.Type)
	})

	t.Run("breach after response due", func(t *testing.T) {
		sweeper, dispatcher := newSweeper(created.Add(5*time.Hour), []domain.ServiceTicket{openTicket(domain.TicketStatusInProgress)})
		sweeper.Sweep(context.Background())

		published := dispatcher.all()
		require.Len(t, published, 1)
		assert.Equal(t, events.EventSLABreached, published[0].Type)
		payload, ok := published[0].Payload.(events.SLAAlertPayload)
		require.True(t, ok)
		assert.True(t, payload.ResponseBreach)
	})

	t.Run("alerts deduplicate across sweeps", func(t *testing.T) {
		sweeper, dispatcher := newSweeper(created.Add(5*time.Hour), []domain.ServiceTicket{openTicket(domain.TicketStatusInProgress)})
		sweeper.Sweep(context.Background())
		sweeper.Sweep(context.Background())
		assert.Len(t, dispatcher.all(), 1)
	})

	t.Run("paused tickets are not warned", func(t *testing.T) {
		ticket := openTicket(domain.TicketStatusPendingParts)
		holdStart := created.Add(time.Hour)
		ticket.PartsHoldStartedAt = &holdStart
		first := created.Add(30 * time.Minute)
		ticket.FirstResponseAt = &first

		sweeper, dispatcher := newSweeper(created.Add(46*time.Hour), []domain.ServiceTicket{ticket})
		sweeper.Sweep(context.Background())
		assert.Empty(t, dispatcher.all())
	})
}

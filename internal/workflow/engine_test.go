package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/service-workflow/internal/domain"
	"github.com/spec-kit/service-workflow/internal/events"
	apperrors "github.com/spec-kit/service-workflow/pkg/util/errorutil"
)

var testStart = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.ServiceTicket
	nextID  int
	loadErr error
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tickets: make(map[string]*domain.ServiceTicket)}
}

func (s *fakeStore) Create(_ context.Context, ticket *domain.ServiceTicket, entry *domain.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ticket.ID = fmt.Sprintf("tk-%d", s.nextID)
	entry.TicketID = ticket.ID
	stored := copyTicket(ticket)
	stored.History = []domain.StatusHistoryEntry{*entry}
	s.tickets[ticket.ID] = stored
	return nil
}

func (s *fakeStore) Load(_ context.Context, id string) (*domain.ServiceTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	stored, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyTicket(stored), nil
}

func (s *fakeStore) Save(_ context.Context, ticket *domain.ServiceTicket, entry *domain.StatusHistoryEntry, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	stored, ok := s.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	ticket.Version = expectedVersion + 1
	next := copyTicket(ticket)
	next.History = append([]domain.StatusHistoryEntry{}, stored.History...)
	if entry != nil {
		next.History = append(next.History, *entry)
	}
	s.tickets[ticket.ID] = next
	return nil
}

func copyTicket(t *domain.ServiceTicket) *domain.ServiceTicket {
	clone := *t
	clone.History = append([]domain.StatusHistoryEntry{}, t.History...)
	return &clone
}

type fakeQuotations struct {
	status domain.QuotationStatus
	err    error
}

func (q *fakeQuotations) StatusForTicket(context.Context, string) (domain.QuotationStatus, error) {
	return q.status, q.err
}

type fakeDirectory struct {
	active map[string]bool
	err    error
}

func (d *fakeDirectory) IsActiveTechnician(_ context.Context, id string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.active[id], nil
}

type fakeAttachments struct {
	count int
	err   error
}

func (a *fakeAttachments) CountByTicket(context.Context, string) (int, error) {
	return a.count, a.err
}

type fakePolicies struct {
	policy *domain.SLAPolicy
}

func (p *fakePolicies) GetByID(context.Context, string) (*domain.SLAPolicy, error) {
	if p.policy == nil {
		return nil, pgx.ErrNoRows
	}
	return p.policy, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var matched []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type testRig struct {
	engine      *Engine
	store       *fakeStore
	quotations  *fakeQuotations
	directory   *fakeDirectory
	attachments *fakeAttachments
	policies    *fakePolicies
	dispatcher  *recordingDispatcher
	now         time.Time
}

func newTestRig(opts Options) *testRig {
	rig := &testRig{
		store:       newFakeStore(),
		quotations:  &fakeQuotations{status: domain.QuotationStatusNone},
		directory:   &fakeDirectory{active: map[string]bool{"tech-1": true, "tech-2": true}},
		attachments: &fakeAttachments{},
		policies:    &fakePolicies{},
		dispatcher:  &recordingDispatcher{},
		now:         testStart,
	}
	rig.engine = NewEngine(Dependencies{
		Store:       rig.store,
		Quotations:  rig.quotations,
		Directory:   rig.directory,
		Attachments: rig.attachments,
		Policies:    rig.policies,
		Dispatcher:  rig.dispatcher,
	}, opts)
	rig.engine.now = func() time.Time { return rig.now }
	return rig
}

func (r *testRig) advance(d time.Duration) {
	r.now = r.now.Add(d)
}

// seed plants a ticket directly in the store in the given state.
func (r *testRig) seed(status domain.TicketStatus, tweak func(*domain.ServiceTicket)) string {
	ticket := &domain.ServiceTicket{
		TicketNumber:      "SRV-TEST",
		Status:            status,
		Priority:          domain.TicketPriorityMedium,
		CustomerName:      "Acme Corp",
		DeviceDescription: "Latitude 5440",
		ProblemReported:   "does not power on",
		Version:           1,
		CreatedAt:         testStart,
		UpdatedAt:         testStart,
	}
	if tweak != nil {
		tweak(ticket)
	}
	entry := &domain.StatusHistoryEntry{
		Action:     string(ActionIntake),
		FromStatus: status,
		ToStatus:   status,
		ChangedBy:  "seed",
		CreatedAt:  testStart,
	}
	_ = r.store.Create(context.Background(), ticket, entry)
	return ticket.ID
}

var tech = Actor{ID: "tech-1", Type: domain.SubjectTypeStaff}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func assertHistoryInvariant(t *testing.T, ticket *domain.ServiceTicket) {
	t.Helper()
	require.NotEmpty(t, ticket.History)
	assert.Equal(t, ticket.Status, ticket.History[len(ticket.History)-1].ToStatus)
}

func TestIntake(t *testing.T) {
	rig := newTestRig(Options{})

	t.Run("missing fields", func(t *testing.T) {
		_, err := rig.engine.Intake(context.Background(), IntakeInput{CustomerName: "Acme"}, tech)
		assertCode(t, err, "VALIDATION_FAILED")
	})

	t.Run("creates in NEW with first history entry", func(t *testing.T) {
		result, err := rig.engine.Intake(context.Background(), IntakeInput{
			CustomerName:      "Acme Corp",
			DeviceDescription: "Latitude 5440",
			ProblemReported:   "does not power on",
		}, tech)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusNew, result.Ticket.Status)
		assert.Equal(t, domain.TicketPriorityMedium, result.Ticket.Priority)
		assert.NotEmpty(t, result.Ticket.TicketNumber)
		require.Len(t, result.Ticket.History, 1)
		assertHistoryInvariant(t, result.Ticket)
		assert.Len(t, rig.dispatcher.ofType(events.EventTicketCreated), 1)
	})
}

func TestApply_UnknownTicket(t *testing.T) {
	rig := newTestRig(Options{})
	_, err := rig.engine.Apply(context.Background(), "missing", ActionStartWork, ActionPayload{}, tech)
	assertCode(t, err, "NOT_FOUND")
}

func TestApply_StoreTimeout(t *testing.T) {
	rig := newTestRig(Options{})
	rig.store.loadErr = context.DeadlineExceeded
	_, err := rig.engine.Apply(context.Background(), "any", ActionStartWork, ActionPayload{}, tech)
	assertCode(t, err, "UNAVAILABLE")
}

func TestApply_VersionConflict(t *testing.T) {
	rig := newTestRig(Options{})
	id := rig.seed(domain.TicketStatusAssigned, func(t *domain.ServiceTicket) {
		techID := "tech-1"
		t.AssignedTo = &techID
	})
	rig.store.saveErr = ErrVersionConflict
	_, err := rig.engine.Apply(context.Background(), id, ActionStartWork, ActionPayload{}, tech)
	assertCode(t, err, "CONFLICT")
}

func TestApply_LockContention(t *testing.T) {
	rig := newTestRig(Options{})
	id := rig.seed(domain.TicketStatusNew, nil)

	release, err := rig.engine.locker.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer release()

	_, err = rig.engine.Apply(context.Background(), id, ActionAssign, ActionPayload{TechnicianID: "tech-1"}, tech)
	assertCode(t, err, "CONFLICT")
}

func TestApply_RepeatingSucceededActionFails(t *testing.T) {
	rig := newTestRig(Options{})
	id := rig.seed(domain.TicketStatusCompleted, nil)

	_, err := rig.engine.Apply(context.Background(), id, ActionClose, ActionPayload{}, tech)
	require.NoError(t, err)

	// Retrying a succeeded action must not double-transition.
	_, err = rig.engine.Apply(context.Background(), id, ActionClose, ActionPayload{}, tech)
	assertCode(t, err, "INVALID_TRANSITION")
}

func TestApply_AssignValidation(t *testing.T) {
	rig := newTestRig(Options{})

	t.Run("missing technician id", func(t *testing.T) {
		id := rig.seed(domain.TicketStatusNew, nil)
		_, err := rig.engine.Apply(context.Background(), id, ActionAssign, ActionPayload{}, tech)
		assertCode(t, err, "GUARD_NOT_SATISFIED")
	})

	t.Run("inactive technician", func(t *testing.T) {
		id := rig.seed(domain.TicketStatusNew, nil)
		_, err := rig.engine.Apply(context.Background(), id, ActionAssign, ActionPayload{TechnicianID: "tech-gone"}, tech)
		assertCode(t, err, "GUARD_NOT_SATISFIED")
	})

	t.Run("direct assignment", func(t *testing.T) {
		id := rig.seed(domain.TicketStatusNew, nil)
		result, err := rig.engine.Apply(context.Background(), id, ActionAssign, ActionPayload{TechnicianID: "tech-1"}, tech)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusAssigned, result.Ticket.Status)
		require.NotNil(t, result.Ticket.AssignedTo)
		assert.Equal(t, "tech-1", *result.Ticket.AssignedTo)
	})
}

func TestApply_AssignWithAcceptance(t *testing.T) {
	rig := newTestRig(Options{RequireAcceptance: true})
	id := rig.seed(domain.TicketStatusNew, nil)

	result, err := rig.engine.Apply(context.Background(), id, ActionAssign, ActionPayload{TechnicianID: "tech-1"}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingAcceptance, result.Ticket.Status)

	// Reassignment is still legal before acceptance.
	result, err = rig.engine.Apply(context.Background(), id, ActionReassign, ActionPayload{TechnicianID: "tech-2"}, tech)
	require.NoError(t, err)
	assert.Equal(t, "tech-2", *result.Ticket.AssignedTo)

	result, err = rig.engine.Apply(context.Background(), id, ActionAcceptAssignment, ActionPayload{}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, result.Ticket.Status)

	// Once accepted, reassignment requires a visible hand-off.
	_, err = rig.engine.Apply(context.Background(), id, ActionReassign, ActionPayload{TechnicianID: "tech-1"}, tech)
	assertCode(t, err, "INVALID_TRANSITION")
}

func TestApply_ScenarioOnSiteResolution(t *testing.T) {
	rig := newTestRig(Options{})
	result, err := rig.engine.Intake(context.Background(), IntakeInput{
		CustomerName:      "Acme Corp",
		DeviceDescription: "Latitude 5440",
		ProblemReported:   "screen flickers",
	}, tech)
	require.NoError(t, err)
	id := result.Ticket.ID

	steps := []struct {
		action  Action
		payload ActionPayload
		want    domain.TicketStatus
	}{
		{ActionAssign, ActionPayload{TechnicianID: "tech-1"}, domain.TicketStatusAssigned},
		{ActionStartWork, ActionPayload{}, domain.TicketStatusInProgress},
		{ActionSubmitDiagnosis, ActionPayload{ProblemIdentified: "screen cracked"}, domain.TicketStatusInProgress},
		{ActionSelectPath, ActionPayload{Path: domain.PathResolvedOnVisit, ResolutionSummary: "replaced panel"}, domain.TicketStatusCompleted},
		{ActionClose, ActionPayload{}, domain.TicketStatusClosed},
	}
	for _, step := range steps {
		result, err = rig.engine.Apply(context.Background(), id, step.action, step.payload, tech)
		require.NoError(t, err, "action %s", step.action)
		assert.Equal(t, step.want, result.Ticket.Status, "action %s", step.action)
		assertHistoryInvariant(t, result.Ticket)
	}

	ticket := result.Ticket
	require.NotNil(t, ticket.Diagnosis)
	assert.Equal(t, "screen cracked", ticket.Diagnosis.ProblemIdentified)
	require.NotNil(t, ticket.ResolutionPath)
	assert.Equal(t, domain.PathResolvedOnVisit, *ticket.ResolutionPath)
	require.NotNil(t, ticket.ResolutionSummary)
	assert.Equal(t, "replaced panel", *ticket.ResolutionSummary)
	assert.NotNil(t, ticket.CompletedAt)
	assert.NotNil(t, ticket.ClosedAt)
	// intake + 5 actions
	assert.Len(t, ticket.History, 6)
}

func TestApply_ScenarioBackofficeOEM(t *testing.T) {
	rig := newTestRig(Options{})
	id := rig.seed(domain.TicketStatusInProgress, func(t *domain.ServiceTicket) {
		techID := "tech-1"
		t.AssignedTo = &techID
		t.Diagnosis = &domain.Diagnosis{ProblemIdentified: "mainboard failure", DiagnosedBy: "tech-1", DiagnosedAt: testStart}
	})

	result, err := rig.engine.Apply(context.Background(), id, ActionSelectPath, ActionPayload{Path: domain.PathDeviceToBackoffice}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusDevicePickup, result.Ticket.Status)

	pickupDate := testStart.Add(2 * time.Hour)
	result, err = rig.engine.Apply(context.Background(), id, ActionRecordPickup, ActionPayload{
		PickupPersonName: "R. Mehta",
		PickupDate:       &pickupDate,
		DeviceCondition:  "no visible damage",
	}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusDeviceUnderRepair, result.Ticket.Status)
	require.NotNil(t, result.Ticket.DevicePickup)

	result, err = rig.engine.Apply(context.Background(), id, ActionRecordWarrantyDecision, ActionPayload{WarrantyType: domain.WarrantyUnderOEM}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusDeviceUnderRepair, result.Ticket.Status)
	require.NotNil(t, result.Ticket.WarrantyType)

	// Warranty decisions are write-once.
	_, err = rig.engine.Apply(context.Background(), id, ActionRecordWarrantyDecision, ActionPayload{WarrantyType: domain.WarrantyUnderAMC}, tech)
	assertCode(t, err, "GUARD_NOT_SATISFIED")

	result, err = rig.engine.Apply(context.Background(), id, ActionRecordOEMRepair, ActionPayload{OEMName: "Dell"}, tech)
	require.NoError(t, err)
	require.NotNil(t, result.Ticket.OEMRepair)
	assert.Equal(t, domain.TicketStatusDeviceUnderRepair, result.Ticket.Status)

	// Completion is gated on the device having come back.
	_, err = rig.engine.Apply(context.Background(), id, ActionCompleteOEMRepair, ActionPayload{}, tech)
	assertCode(t, err, "GUARD_NOT_SATISFIED")

	receivedBack := testStart.Add(72 * time.Hour)
	_, err = rig.engine.Apply(context.Background(), id, ActionUpdateOEMRepair, ActionPayload{ReceivedBackDate: &receivedBack}, tech)
	require.NoError(t, err)

	result, err = rig.engine.Apply(context.Background(), id, ActionCompleteOEMRepair, ActionPayload{}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReadyForDelivery, result.Ticket.Status)

	result, err = rig.engine.Apply(context.Background(), id, ActionDispatchDelivery, ActionPayload{}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOutForDelivery, result.Ticket.Status)

	deliveryDate := testStart.Add(80 * time.Hour)
	result, err = rig.engine.Apply(context.Background(), id, ActionRecordDelivery, ActionPayload{
		DeliveryPersonName: "R. Mehta",
		DeliveryDate:       &deliveryDate,
		DeliveredToName:    "Acme front desk",
	}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCompleted, result.Ticket.Status)
	require.NotNil(t, result.Ticket.DeviceDelivery)
	assertHistoryInvariant(t, result.Ticket)
}

func TestApply_AMCRepairPath(t *testing.T) {
	rig := newTestRig(Options{RequireRepairEvidence: true})
	warranty := domain.WarrantyUnderAMC
	id := rig.seed(domain.TicketStatusDeviceUnderRepair, func(t *domain.ServiceTicket) {
		t.WarrantyType = &warranty
	})

	_, err := rig.engine.Apply(context.Background(), id, ActionStartAMCRepair, ActionPayload{}, tech)
	assertCode(t, err, "GUARD_NOT_SATISFIED")

	result, err := rig.engine.Apply(context.Background(), id, ActionStartAMCRepair, ActionPayload{IssueIdentified: "PSU failure"}, tech)
	require.NoError(t, err)
	require.NotNil(t, result.Ticket.AMCRepair)

	result, err = rig.engine.Apply(context.Background(), id, ActionUpdateAMCRepair, ActionPayload{
		RepairActions: []string{"replaced PSU"},
		PartsReplaced: []string{"PSU-450W"},
	}, tech)
	require.NoError(t, err)
	assert.Equal(t, []string{"replaced PSU"}, result.Ticket.AMCRepair.RepairActions)
	assert.Equal(t, domain.TicketStatusDeviceUnderRepair, result.Ticket.Status)

	// Evidence policy: no attachments, no completion.
	_, err = rig.engine.Apply(context.Background(), id, ActionCompleteAMCRepair, ActionPayload{}, tech)
	assertCode(t, err, "GUARD_NOT_SATISFIED")

	rig.attachments.count = 1
	result, err = rig.engine.Apply(context.Background(), id, ActionCompleteAMCRepair, ActionPayload{}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReadyForDelivery, result.Ticket.Status)
	assert.NotNil(t, result.Ticket.AMCRepair.CompletedAt)
}

func TestApply_PartsHoldAndResume(t *testing.T) {
	rig := newTestRig(Options{})
	policyID := "pol-1"
	rig.policies.policy = &domain.SLAPolicy{ID: policyID, Name: "standard", ResponseHours: 4, ResolutionHours: 48}
	id := rig.seed(domain.TicketStatusInProgress, func(t *domain.ServiceTicket) {
		t.SLAPolicyID = &policyID
	})

	result, err := rig.engine.Apply(context.Background(), id, ActionMarkPendingParts, ActionPayload{}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingParts, result.Ticket.Status)
	require.NotNil(t, result.Ticket.PartsHoldStartedAt)
	require.NotNil(t, result.SLA)
	assert.True(t, result.SLA.IsPaused)

	rig.advance(5 * time.Hour)

	_, err = rig.engine.Apply(context.Background(), id, ActionResumeFromParts, ActionPayload{}, tech)
	assertCode(t, err, "GUARD_NOT_SATISFIED")

	rig.quotations.status = domain.QuotationStatusApproved
	result, err = rig.engine.Apply(context.Background(), id, ActionResumeFromParts, ActionPayload{}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, result.Ticket.Status)
	assert.Nil(t, result.Ticket.PartsHoldStartedAt)
	assert.Equal(t, int64((5*time.Hour).Seconds()), result.Ticket.PartsHoldSeconds)

	require.NotNil(t, result.SLA)
	assert.False(t, result.SLA.IsPaused)
	assert.Equal(t, testStart.Add(48*time.Hour).Add(5*time.Hour), result.SLA.ResolutionDueAt)
	assert.Len(t, rig.dispatcher.ofType(events.EventQuotationUnblocked), 1)

	// A second hold cycle accumulates on top of the first.
	_, err = rig.engine.Apply(context.Background(), id, ActionMarkPendingParts, ActionPayload{}, tech)
	require.NoError(t, err)
	rig.advance(3 * time.Hour)
	result, err = rig.engine.Apply(context.Background(), id, ActionResumeFromParts, ActionPayload{}, tech)
	require.NoError(t, err)
	assert.Equal(t, int64((8*time.Hour).Seconds()), result.Ticket.PartsHoldSeconds)
}

func TestApply_CompleteRoutes(t *testing.T) {
	t.Run("requires resolution summary", func(t *testing.T) {
		rig := newTestRig(Options{})
		id := rig.seed(domain.TicketStatusInProgress, nil)
		_, err := rig.engine.Apply(context.Background(), id, ActionComplete, ActionPayload{}, tech)
		assertCode(t, err, "GUARD_NOT_SATISFIED")
	})

	t.Run("from in_progress", func(t *testing.T) {
		rig := newTestRig(Options{})
		id := rig.seed(domain.TicketStatusInProgress, nil)
		result, err := rig.engine.Apply(context.Background(), id, ActionComplete, ActionPayload{ResolutionSummary: "reseated RAM"}, tech)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusCompleted, result.Ticket.Status)
	})

	t.Run("from pending_parts needs approved quotation", func(t *testing.T) {
		rig := newTestRig(Options{})
		id := rig.seed(domain.TicketStatusPendingParts, nil)
		_, err := rig.engine.Apply(context.Background(), id, ActionComplete, ActionPayload{ResolutionSummary: "installed part"}, tech)
		assertCode(t, err, "GUARD_NOT_SATISFIED")

		rig.quotations.status = domain.QuotationStatusApproved
		result, err := rig.engine.Apply(context.Background(), id, ActionComplete, ActionPayload{ResolutionSummary: "installed part"}, tech)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusCompleted, result.Ticket.Status)
	})

	t.Run("backoffice devices complete through delivery", func(t *testing.T) {
		rig := newTestRig(Options{})
		path := domain.PathDeviceToBackoffice
		id := rig.seed(domain.TicketStatusInProgress, func(t *domain.ServiceTicket) {
			t.ResolutionPath = &path
		})
		_, err := rig.engine.Apply(context.Background(), id, ActionComplete, ActionPayload{ResolutionSummary: "done"}, tech)
		assertCode(t, err, "GUARD_NOT_SATISFIED")
	})
}

func TestApply_SubmitDiagnosisRules(t *testing.T) {
	rig := newTestRig(Options{})
	id := rig.seed(domain.TicketStatusInProgress, nil)

	_, err := rig.engine.Apply(context.Background(), id, ActionSubmitDiagnosis, ActionPayload{}, tech)
	assertCode(t, err, "GUARD_NOT_SATISFIED")

	_, err = rig.engine.Apply(context.Background(), id, ActionSelectPath, ActionPayload{Path: domain.PathPendingForPart}, tech)
	assertCode(t, err, "GUARD_NOT_SATISFIED")

	result, err := rig.engine.Apply(context.Background(), id, ActionSubmitDiagnosis, ActionPayload{ProblemIdentified: "dead battery"}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, result.Ticket.Status)
	assertHistoryInvariant(t, result.Ticket)

	// Diagnosis is created exactly once.
	_, err = rig.engine.Apply(context.Background(), id, ActionSubmitDiagnosis, ActionPayload{ProblemIdentified: "other"}, tech)
	assertCode(t, err, "GUARD_NOT_SATISFIED")

	result, err = rig.engine.Apply(context.Background(), id, ActionSelectPath, ActionPayload{Path: domain.PathPendingForPart}, tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingParts, result.Ticket.Status)

	// The chosen path is immutable even after resuming.
	rig.quotations.status = domain.QuotationStatusApproved
	_, err = rig.engine.Apply(context.Background(), id, ActionResumeFromParts, ActionPayload{}, tech)
	require.NoError(t, err)
	_, err = rig.engine.Apply(context.Background(), id, ActionSelectPath, ActionPayload{Path: domain.PathResolvedOnVisit, ResolutionSummary: "x"}, tech)
	assertCode(t, err, "GUARD_NOT_SATISFIED")
}

func TestApply_Cancel(t *testing.T) {
	cancellable := []domain.TicketStatus{
		domain.TicketStatusNew,
		domain.TicketStatusPendingAcceptance,
		domain.TicketStatusAssigned,
		domain.TicketStatusDevicePickup,
		domain.TicketStatusDeviceUnderRepair,
		domain.TicketStatusReadyForDelivery,
		domain.TicketStatusOutForDelivery,
	}
	for _, status := range cancellable {
		t.Run(string(status), func(t *testing.T) {
			rig := newTestRig(Options{})
			id := rig.seed(status, nil)
			result, err := rig.engine.Apply(context.Background(), id, ActionCancel, ActionPayload{CancellationReason: "customer withdrew"}, tech)
			require.NoError(t, err)
			assert.Equal(t, domain.TicketStatusCancelled, result.Ticket.Status)
			require.NotNil(t, result.Ticket.CancellationReason)
		})
	}

	blocked := []domain.TicketStatus{
		domain.TicketStatusInProgress,
		domain.TicketStatusPendingParts,
		domain.TicketStatusCompleted,
		domain.TicketStatusClosed,
		domain.TicketStatusCancelled,
	}
	for _, status := range blocked {
		t.Run(string(status)+" blocked", func(t *testing.T) {
			rig := newTestRig(Options{})
			id := rig.seed(status, nil)
			_, err := rig.engine.Apply(context.Background(), id, ActionCancel, ActionPayload{CancellationReason: "any"}, tech)
			assertCode(t, err, "INVALID_TRANSITION")
		})
	}

	t.Run("reason required", func(t *testing.T) {
		rig := newTestRig(Options{})
		id := rig.seed(domain.TicketStatusNew, nil)
		_, err := rig.engine.Apply(context.Background(), id, ActionCancel, ActionPayload{}, tech)
		assertCode(t, err, "GUARD_NOT_SATISFIED")
	})
}

func TestRecordFirstResponse(t *testing.T) {
	rig := newTestRig(Options{})
	id := rig.seed(domain.TicketStatusInProgress, nil)

	first := testStart.Add(time.Hour)
	require.NoError(t, rig.engine.RecordFirstResponse(context.Background(), id, first))

	// Later calls must not move the milestone.
	require.NoError(t, rig.engine.RecordFirstResponse(context.Background(), id, testStart.Add(9*time.Hour)))

	result, err := rig.engine.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, result.Ticket.FirstResponseAt)
	assert.True(t, result.Ticket.FirstResponseAt.Equal(first))
}

func TestGet_WithoutPolicyHasNoSLA(t *testing.T) {
	rig := newTestRig(Options{})
	id := rig.seed(domain.TicketStatusInProgress, nil)
	result, err := rig.engine.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, result.SLA)
}

func TestApply_PublishesTransitionEvents(t *testing.T) {
	rig := newTestRig(Options{})
	id := rig.seed(domain.TicketStatusNew, nil)
	_, err := rig.engine.Apply(context.Background(), id, ActionAssign, ActionPayload{TechnicianID: "tech-1"}, tech)
	require.NoError(t, err)

	transitioned := rig.dispatcher.ofType(events.EventTicketTransitioned)
	require.Len(t, transitioned, 1)
	payload, ok := transitioned[0].Payload.(events.TicketTransitionedPayload)
	require.True(t, ok)
	assert.Equal(t, string(ActionAssign), payload.Action)
	assert.Equal(t, domain.TicketStatusNew, payload.FromStatus)
	assert.Equal(t, domain.TicketStatusAssigned, payload.ToStatus)
}

package sla

import (
	"time"

	"github.com/spec-kit/service-workflow/internal/domain"
)

// Snapshot is the derived SLA view for a ticket at a point in time. It is
// recomputed on read and never persisted as a source of truth.
type Snapshot struct {
	PolicyID         string        `json:"policy_id"`
	PolicyName       string        `json:"policy_name"`
	ResponseDueAt    time.Time     `json:"response_due_at"`
	ResolutionDueAt  time.Time     `json:"resolution_due_at"`
	ResponseMet      bool          `json:"response_met"`
	ResponseBreach   bool          `json:"response_breached"`
	ResolutionMet    bool          `json:"resolution_met"`
	ResolutionBreach bool          `json:"resolution_breached"`
	IsPaused         bool          `json:"is_paused"`
	PausedDuration   time.Duration `json:"paused_duration_ns"`
	EvaluatedAt      time.Time     `json:"evaluated_at"`
}

// Clock computes due timestamps and breach/pause status from a policy and
// the ticket's timestamp history. All breach semantics live here so every
// caller sees the same answer.
type Clock struct {
	now func() time.Time
}

// NewClock builds a clock using wall time.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockAt builds a clock with an injected time source.
func NewClockAt(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Evaluate derives the SLA snapshot for ticket under policy. A nil policy
// yields a nil snapshot: a ticket without an SLA simply has no view.
func (c *Clock) Evaluate(policy *domain.SLAPolicy, ticket *domain.ServiceTicket) *Snapshot {
	if policy == nil || ticket == nil {
		return nil
	}
	now := c.now()
	paused := ticket.PausedDuration(now)

	responseDue := ticket.CreatedAt.Add(policy.ResponseBudget())
	// Pause time is excluded from the resolution clock by shifting the due
	// timestamp forward; response is unaffected by parts holds.
	resolutionDue := ticket.CreatedAt.Add(policy.ResolutionBudget()).Add(paused)

	snap := &Snapshot{
		PolicyID:        policy.ID,
		PolicyName:      policy.Name,
		ResponseDueAt:   responseDue,
		ResolutionDueAt: resolutionDue,
		IsPaused:        ticket.Status == domain.TicketStatusPendingParts,
		PausedDuration:  paused,
		EvaluatedAt:     now,
	}

	if ticket.FirstResponseAt != nil {
		snap.ResponseMet = !ticket.FirstResponseAt.After(responseDue)
	} else {
		snap.ResponseBreach = now.After(responseDue)
	}

	resolved := ticket.Status == domain.TicketStatusCompleted || ticket.Status == domain.TicketStatusClosed
	if resolved {
		if ticket.CompletedAt != nil {
			snap.ResolutionMet = !ticket.CompletedAt.After(resolutionDue)
		}
	} else {
		snap.ResolutionBreach = now.After(resolutionDue)
	}
	return snap
}

package domain

import "time"

// SLAPolicy defines response and resolution time budgets. A ticket without
// an assigned policy simply has no SLA view; that is not an error.
type SLAPolicy struct {
	ID              string
	Name            string
	ResponseHours   int
	ResolutionHours int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ResponseBudget returns the response window as a duration.
func (p SLAPolicy) ResponseBudget() time.Duration {
	return time.Duration(p.ResponseHours) * time.Hour
}

// ResolutionBudget returns the resolution window as a duration.
func (p SLAPolicy) ResolutionBudget() time.Duration {
	return time.Duration(p.ResolutionHours) * time.Hour
}

package domain

import "time"

// StatusHistoryEntry is one immutable row of the ticket's audit trail.
// Every successful workflow action appends exactly one entry; entries are
// never mutated or reordered, and the last entry's ToStatus always equals
// the ticket's current status.
type StatusHistoryEntry struct {
	ID         string
	TicketID   string
	Action     string
	FromStatus TicketStatus
	ToStatus   TicketStatus
	ChangedBy  string
	Notes      string
	CreatedAt  time.Time
}

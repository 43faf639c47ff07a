package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleTechnician StaffRole = "TECHNICIAN"
	StaffRoleDispatcher StaffRole = "DISPATCHER"
	StaffRoleAdmin      StaffRole = "ADMIN"
)

// Technician models a staff member who can be assigned repair tickets.
type Technician struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Skills       []string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

package dto

import (
	"time"

	"github.com/spec-kit/service-workflow/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffLoginResponse carries the issued token.
type StaffLoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Staff     StaffResponse `json:"staff"`
}

// StaffResponse exposes non-sensitive technician fields.
type StaffResponse struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Email  string           `json:"email"`
	Role   domain.StaffRole `json:"role"`
	Skills []string         `json:"skills"`
	Active bool             `json:"active"`
}

// NewStaffResponse maps a technician.
func NewStaffResponse(staff *domain.Technician) StaffResponse {
	return StaffResponse{
		ID:     staff.ID,
		Name:   staff.Name,
		Email:  staff.Email,
		Role:   staff.Role,
		Skills: staff.Skills,
		Active: staff.Active,
	}
}

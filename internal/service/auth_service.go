package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/service-workflow/internal/auth"
	"github.com/spec-kit/service-workflow/internal/config"
	"github.com/spec-kit/service-workflow/internal/domain"
	"github.com/spec-kit/service-workflow/internal/repository"
)

// AuthService coordinates staff login and account provisioning.
type AuthService struct {
	staff      repository.TechnicianRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, staff repository.TechnicianRepository) *AuthService {
	return &AuthService{
		staff:      staff,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// LoginStaff authenticates staff and returns a role-bearing token.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*domain.Technician, string, time.Time, error) {
	staff, err := s.staff.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if !staff.Active {
		return nil, "", time.Time{}, errors.New("staff inactive")
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, errors.New("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(staff.ID, domain.SubjectTypeStaff, &staff.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return staff, token, exp, nil
}

// RegisterStaff provisions a technician account.
func (s *AuthService) RegisterStaff(ctx context.Context, name, email, password string, role domain.StaffRole, skills []string) (*domain.Technician, error) {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	staff := &domain.Technician{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Skills:       skills,
		Active:       true,
	}
	if err := s.staff.Create(ctx, staff); err != nil {
		return nil, err
	}
	return staff, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

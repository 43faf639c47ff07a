package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-workflow/internal/api/dto"
	"github.com/spec-kit/service-workflow/internal/service"
	apperrors "github.com/spec-kit/service-workflow/pkg/util/errorutil"
)

// AuthHandler exposes staff authentication endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login POST /auth/staff/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	staff, token, expiresAt, err := h.auth.LoginStaff(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewUnauthorized("invalid credentials")
		}
		return apperrors.NewUnauthorized(err.Error())
	}

	return c.JSON(fiber.Map{"data": dto.StaffLoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Staff:     dto.NewStaffResponse(staff),
	}})
}

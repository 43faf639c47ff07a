package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-workflow/internal/api/dto"
	"github.com/spec-kit/service-workflow/internal/auth"
	"github.com/spec-kit/service-workflow/internal/domain"
	"github.com/spec-kit/service-workflow/internal/observability"
	"github.com/spec-kit/service-workflow/internal/workflow"
)

// WorkflowHandler exposes ticket intake, reads, and action application.
type WorkflowHandler struct {
	engine  *workflow.Engine
	metrics *observability.Metrics
}

// NewWorkflowHandler constructs handler.
func NewWorkflowHandler(engine *workflow.Engine, metrics *observability.Metrics) *WorkflowHandler {
	return &WorkflowHandler{engine: engine, metrics: metrics}
}

// CreateTicket POST /tickets.
func (h *WorkflowHandler) CreateTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	result, err := h.engine.Intake(c.UserContext(), workflow.IntakeInput{
		CustomerName:      req.CustomerName,
		DeviceDescription: req.DeviceDescription,
		ProblemReported:   req.ProblemReported,
		Priority:          req.Priority,
		SLAPolicyID:       req.SLAPolicyID,
		QuotationID:       req.QuotationID,
	}, staffActor(staff))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(result)})
}

// GetTicket GET /tickets/:id.
func (h *WorkflowHandler) GetTicket(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	result, err := h.engine.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(result)})
}

// ApplyAction POST /tickets/:id/actions/:action.
func (h *WorkflowHandler) ApplyAction(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	action, err := workflow.ParseAction(c.Params("action"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	var payload dto.ApplyActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid payload")
		}
	}

	result, err := h.engine.Apply(c.UserContext(), c.Params("id"), action, payload, staffActor(staff))
	if err != nil {
		return err
	}
	h.metrics.RecordTransition(string(action), string(result.Ticket.Status))
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(result)})
}

// RecordFirstResponse POST /tickets/:id/first-response. Idempotent; the
// milestone sticks at the first reported timestamp.
func (h *WorkflowHandler) RecordFirstResponse(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	var req struct {
		At *time.Time `json:"at"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid payload")
		}
	}
	at := time.Now()
	if req.At != nil {
		at = *req.At
	}
	if err := h.engine.RecordFirstResponse(c.UserContext(), c.Params("id"), at); err != nil {
		return err
	}
	result, err := h.engine.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(result)})
}

func staffActor(staff *domain.Technician) workflow.Actor {
	return workflow.Actor{ID: staff.ID, Type: domain.SubjectTypeStaff}
}

func staffPrincipal(c *fiber.Ctx) (*domain.Technician, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return nil, fiber.NewError(http.StatusUnauthorized, "staff required")
	}
	return principal.Staff, nil
}

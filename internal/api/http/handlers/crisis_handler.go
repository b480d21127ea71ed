package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/campuscare/counseling-service/internal/api/dto"
	"github.com/campuscare/counseling-service/internal/auth"
	"github.com/campuscare/counseling-service/internal/service"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

// CrisisHandler exposes crisis event endpoints.
type CrisisHandler struct {
	crisis *service.CrisisService
}

// NewCrisisHandler constructs handler.
func NewCrisisHandler(crisis *service.CrisisService) *CrisisHandler {
	return &CrisisHandler{crisis: crisis}
}

// Report POST /tickets/:id/crisis.
func (h *CrisisHandler) Report(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	var req dto.ReportCrisisRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	event, err := h.crisis.Report(c.UserContext(), user, c.Params("id"), req.Level)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCrisisEventResponse(event)})
}

// List GET /crisis-events.
func (h *CrisisHandler) List(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.crisis.ListRecent(c.UserContext(), user, limit)
	if err != nil {
		return err
	}
	items := make([]dto.CrisisEventResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NewCrisisEventResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Acknowledge POST /crisis-events/:id/acknowledge.
func (h *CrisisHandler) Acknowledge(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	event, err := h.crisis.Acknowledge(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCrisisEventResponse(event)})
}

// Resolve POST /crisis-events/:id/resolve.
func (h *CrisisHandler) Resolve(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	var req dto.ResolveCrisisRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	event, err := h.crisis.ResolveEvent(c.UserContext(), user, c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCrisisEventResponse(event)})
}

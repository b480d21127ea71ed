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

// AssessmentsHandler exposes self-assessment endpoints.
type AssessmentsHandler struct {
	crisis *service.CrisisService
}

// NewAssessmentsHandler constructs handler.
func NewAssessmentsHandler(crisis *service.CrisisService) *AssessmentsHandler {
	return &AssessmentsHandler{crisis: crisis}
}

// Submit POST /assessments.
func (h *AssessmentsHandler) Submit(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	var req dto.SubmitAssessmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	assessment, err := h.crisis.SubmitAssessment(c.UserContext(), user, service.SubmitAssessmentInput{
		Responses: req.Responses,
		Notes:     req.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAssessmentResponse(assessment)})
}

// ListMine GET /assessments/my.
func (h *AssessmentsHandler) ListMine(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	if user == nil {
		return apperrors.NewUnauthenticated("authentication required")
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.crisis.ListAssessments(c.UserContext(), user, user.ID, limit)
	if err != nil {
		return err
	}
	items := make([]dto.AssessmentResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NewAssessmentResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/campuscare/counseling-service/internal/api/dto"
	"github.com/campuscare/counseling-service/internal/auth"
	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/service"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket lifecycle and message endpoints.
type TicketsHandler struct {
	tickets     *service.TicketService
	assignments *service.AssignmentService
	messages    *service.MessageService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, assignments *service.AssignmentService, messages *service.MessageService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, assignments: assignments, messages: messages}
}

// Create POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.tickets.Create(c.UserContext(), user, service.CreateTicketInput{
		Category:       req.Category,
		InitialMessage: req.InitialMessage,
		CrisisLevel:    req.CrisisLevel,
		Priority:       req.Priority,
		CounselorID:    req.CounselorID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// ListMine GET /tickets/my.
func (h *TicketsHandler) ListMine(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	statuses := parseStatuses(c.Query("status"))
	limit, offset := parsePagination(c)

	tickets, err := h.tickets.List(c.UserContext(), user, statuses, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summarize(tickets)})
}

// ListAvailable GET /tickets/available.
func (h *TicketsHandler) ListAvailable(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	limit, offset := parsePagination(c)

	tickets, err := h.assignments.AvailableTickets(c.UserContext(), user, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summarize(tickets)})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	ticket, err := h.tickets.Get(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	msgs, err := h.messages.History(c.UserContext(), user, ticket.ID, nil, 0)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket, msgs)})
}

// Claim POST /tickets/:id/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	ticket, err := h.assignments.Claim(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.CounselorID) == "" {
		return apperrors.NewValidationError("counselor_id required", nil)
	}
	ticket, err := h.assignments.AssignTo(c.UserContext(), user, c.Params("id"), req.CounselorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	ticket, err := h.tickets.Transition(c.UserContext(), user, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// SendMessage POST /tickets/:id/messages.
func (h *TicketsHandler) SendMessage(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.messages.Send(c.UserContext(), c.Params("id"), user, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// ListMessages GET /tickets/:id/messages.
func (h *TicketsHandler) ListMessages(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return apperrors.NewValidationError("since must be RFC3339", nil)
		}
		since = &ts
	}
	limit, _ := parsePagination(c)

	msgs, err := h.messages.History(c.UserContext(), user, c.Params("id"), since, limit)
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, dto.NewMessageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	user := auth.UserFromContext(c)
	limit, offset := parsePagination(c)

	entries, err := h.tickets.History(c.UserContext(), user, c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewHistoryEntry(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func summarize(tickets []domain.Ticket) []dto.TicketSummary {
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return items
}

func parseStatuses(raw string) []domain.TicketStatus {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	statuses := make([]domain.TicketStatus, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			statuses = append(statuses, domain.TicketStatus(trimmed))
		}
	}
	return statuses
}

func parsePagination(c *fiber.Ctx) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	return limit, offset
}

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/api/dto"
	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/service"
	"github.com/spec-kit/ticket-desk/internal/store"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

const defaultHistoryLimit = 50

// TicketsHandler serves the dashboard's ticket endpoints on top of the caller's store.
type TicketsHandler struct {
	sessions *service.SessionService
	journal  *service.JournalService
	location *time.Location
}

// NewTicketsHandler constructs handler. loc is the default zone for chat day grouping.
func NewTicketsHandler(sessions *service.SessionService, journal *service.JournalService, loc *time.Location) *TicketsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TicketsHandler{sessions: sessions, journal: journal, location: loc}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := store.ParseStatusFilter(c.Query("status"))
	if err != nil {
		return err
	}
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := sess.EnsureLoaded(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": listResponse(sess.Store, filter)})
}

// RefreshTickets POST /tickets/refresh.
func (h *TicketsHandler) RefreshTickets(c *fiber.Ctx) error {
	filter, err := store.ParseStatusFilter(c.Query("status"))
	if err != nil {
		return err
	}
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := sess.Store.Load(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": listResponse(sess.Store, filter)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	sess, err := h.loadedSession(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	ticket, ok := sess.Store.Get(id)
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, sess.Store.InFlight(id))})
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	sess, err := h.loadedSession(c)
	if err != nil {
		return err
	}
	ticket, err := sess.Store.Create(c.UserContext(), req.Draft())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, false)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	sess, err := h.loadedSession(c)
	if err != nil {
		return err
	}
	ticket, err := sess.Store.Update(c.UserContext(), c.Params("id"), req.Patch())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, false)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	sess, err := h.loadedSession(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	if err := sess.Store.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "undo_available": true}})
}

// UndoDelete POST /tickets/undo.
func (h *TicketsHandler) UndoDelete(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	ticket, err := sess.Store.UndoLastDelete(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, false)})
}

// GetChat GET /tickets/:id/chat. An optional tz query names the IANA zone used for day boundaries.
func (h *TicketsHandler) GetChat(c *fiber.Ctx) error {
	loc := h.location
	if tz := strings.TrimSpace(c.Query("tz")); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return apperrors.NewValidationError("unknown time zone", map[string]any{"tz": tz})
		}
		loc = parsed
	}
	sess, err := h.loadedSession(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	ticket, ok := sess.Store.Get(id)
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}

	groups := store.GroupChatByDay(ticket.Chat, loc)
	days := make([]dto.ChatDayResponse, 0, len(groups))
	for _, group := range groups {
		messages := make([]dto.ChatMessageResponse, 0, len(group.Messages))
		for _, msg := range group.Messages {
			messages = append(messages, dto.NewChatMessageResponse(msg))
		}
		days = append(days, dto.ChatDayResponse{Day: group.Day, Messages: messages})
	}
	return c.JSON(fiber.Map{"data": days})
}

// AppendMessage POST /tickets/:id/chat.
func (h *TicketsHandler) AppendMessage(c *fiber.Ctx) error {
	var req dto.ChatMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	sess, err := h.loadedSession(c)
	if err != nil {
		return err
	}
	msg, err := sess.Store.AppendMessage(c.UserContext(), c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewChatMessageResponse(msg)})
}

// History GET /tickets/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("bearer token required")
	}
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		return apperrors.NewValidationError("limit must be positive", map[string]any{"limit": limit})
	}
	records, err := h.journal.History(c.UserContext(), principal.SessionKey, limit)
	if err != nil {
		return err
	}
	items := make([]dto.MutationRecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, dto.MutationRecordResponse{
			ID:        r.ID,
			Kind:      r.Kind,
			TicketID:  r.TicketID,
			State:     r.State,
			ErrorCode: r.ErrorCode,
			Cause:     r.Cause,
			StartedAt: r.StartedAt,
			SettledAt: r.SettledAt,
		})
	}
	return c.JSON(fiber.Map{"data": items, "enabled": h.journal.Enabled()})
}

func (h *TicketsHandler) session(c *fiber.Ctx) (*service.Session, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("bearer token required")
	}
	return h.sessions.Acquire(principal), nil
}

func (h *TicketsHandler) loadedSession(c *fiber.Ctx) (*service.Session, error) {
	sess, err := h.session(c)
	if err != nil {
		return nil, err
	}
	if err := sess.EnsureLoaded(c.UserContext()); err != nil {
		return nil, err
	}
	return sess, nil
}

func listResponse(s *store.Store, filter domain.StatusFilter) dto.TicketListResponse {
	tickets := s.FilteredView(filter)
	resp := dto.TicketListResponse{
		Filter:  filter,
		Loading: s.Loading(),
		Tickets: make([]dto.TicketResponse, 0, len(tickets)),
	}
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, dto.NewTicketResponse(t, s.InFlight(t.ID)))
	}
	if last, ok := s.LastDeleted(); ok {
		deleted := dto.NewTicketResponse(last, false)
		resp.LastDeleted = &deleted
	}
	return resp
}

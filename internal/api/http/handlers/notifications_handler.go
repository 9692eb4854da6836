package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/api/dto"
	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/service"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

const defaultNoticeLimit = 20

// NotificationsHandler exposes the caller's notice feed.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("bearer token required")
	}
	limit := c.QueryInt("limit", defaultNoticeLimit)
	if limit <= 0 {
		return apperrors.NewValidationError("limit must be positive", map[string]any{"limit": limit})
	}
	notices, err := h.notifications.List(c.UserContext(), principal.SessionKey, limit)
	if err != nil {
		return err
	}
	items := make([]dto.NoticeResponse, 0, len(notices))
	for _, n := range notices {
		items = append(items, dto.NoticeResponse{
			ID:        n.ID,
			Level:     n.Level,
			Text:      n.Text,
			TicketID:  n.TicketID,
			CreatedAt: n.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Clear DELETE /notifications.
func (h *NotificationsHandler) Clear(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("bearer token required")
	}
	if err := h.notifications.Clear(c.UserContext(), principal.SessionKey); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

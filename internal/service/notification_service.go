package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/repository"
)

// Notice levels.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)

// NotificationService turns settled store mutations into user-facing notices.
type NotificationService struct {
	dispatcher events.Dispatcher
	notices    repository.NoticeRepository
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notices repository.NoticeRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		notices:    notices,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeMany(n.dispatcher, n.handleSettled, events.SettledTypes...)
}

// List returns the session's notices, newest first.
func (n *NotificationService) List(ctx context.Context, sessionKey string, limit int) ([]domain.Notice, error) {
	return n.notices.List(ctx, sessionKey, limit)
}

// Clear forgets the session's notices.
func (n *NotificationService) Clear(ctx context.Context, sessionKey string) error {
	return n.notices.Clear(ctx, sessionKey)
}

func (n *NotificationService) handleSettled(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MutationPayload)
	if !ok || event.SessionID == "" {
		return nil
	}
	level, text := noticeText(payload)
	if text == "" {
		return nil
	}
	notice := domain.Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Text:      text,
		TicketID:  event.TicketID,
		CreatedAt: event.Timestamp,
	}
	if err := n.notices.Push(ctx, event.SessionID, notice); err != nil {
		n.logger.Warn("store notice failed", zap.String("session", event.SessionID), zap.Error(err))
		return err
	}
	return nil
}

func noticeText(p events.MutationPayload) (string, string) {
	committed := p.State == domain.MutationCommitted
	switch p.Kind {
	case domain.MutationCreate:
		if committed {
			return NoticeSuccess, "Ticket created successfully!"
		}
		return NoticeError, "Failed to create ticket. Please try again."
	case domain.MutationUpdate:
		if committed {
			return NoticeSuccess, "Ticket updated successfully!"
		}
		return NoticeError, "Failed to update ticket. Reverting changes..."
	case domain.MutationDelete:
		if committed {
			return NoticeSuccess, "Ticket deleted successfully!"
		}
		return NoticeError, "Failed to delete ticket. Please try again."
	case domain.MutationChat:
		if committed {
			return "", ""
		}
		return NoticeError, "Failed to send message."
	case domain.MutationUndo:
		return NoticeSuccess, "Ticket restored."
	}
	return "", ""
}

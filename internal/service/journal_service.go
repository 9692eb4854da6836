package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/repository"
)

// JournalService writes every settled mutation to the audit journal.
type JournalService struct {
	dispatcher events.Dispatcher
	journal    repository.MutationJournalRepository
	logger     *zap.Logger
}

// NewJournalService creates the service. A nil journal disables recording.
func NewJournalService(dispatcher events.Dispatcher, journal repository.MutationJournalRepository, logger *zap.Logger) *JournalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalService{dispatcher: dispatcher, journal: journal, logger: logger}
}

// Enabled reports whether a journal backend is configured.
func (j *JournalService) Enabled() bool {
	return j != nil && j.journal != nil
}

// RegisterHandlers subscribes to settled mutation events.
func (j *JournalService) RegisterHandlers() {
	if j.dispatcher == nil || !j.Enabled() {
		return
	}
	events.SubscribeMany(j.dispatcher, j.handleSettled, events.SettledTypes...)
}

// History returns the session's most recent settled mutations.
func (j *JournalService) History(ctx context.Context, sessionKey string, limit int) ([]domain.MutationRecord, error) {
	if !j.Enabled() {
		return []domain.MutationRecord{}, nil
	}
	return j.journal.ListBySession(ctx, sessionKey, limit)
}

func (j *JournalService) handleSettled(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MutationPayload)
	if !ok {
		return nil
	}
	record := &domain.MutationRecord{
		ID:        payload.MutationID,
		SessionID: event.SessionID,
		Kind:      payload.Kind,
		TicketID:  event.TicketID,
		State:     payload.State,
		ErrorCode: payload.Code,
		Cause:     payload.Cause,
		StartedAt: payload.StartedAt,
		SettledAt: event.Timestamp,
	}
	if payload.Message != "" {
		record.Details = map[string]any{"message": payload.Message}
	}
	if err := j.journal.Record(ctx, record); err != nil {
		j.logger.Warn("journal write failed",
			zap.String("mutation_id", record.ID),
			zap.String("kind", string(record.Kind)),
			zap.Error(err))
		return err
	}
	return nil
}

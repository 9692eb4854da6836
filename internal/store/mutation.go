package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/gateway"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

type deltaKind int

const (
	deltaUpdate deltaKind = iota
	deltaDelete
)

// delta is an optimistic change waiting for the gateway to confirm it.
type delta struct {
	mutationID string
	kind       deltaKind
	patch      domain.TicketPatch
	appliedAt  time.Time
}

// undoSlot remembers the last successfully deleted ticket and where it sat in the base.
type undoSlot struct {
	ticket domain.Ticket
	index  int
}

// mutation tracks one operation through its state machine for event publication.
type mutation struct {
	id        string
	kind      domain.MutationKind
	ticketID  string
	startedAt time.Time
}

func (s *Store) begin(ctx context.Context, kind domain.MutationKind, ticketID string) *mutation {
	m := &mutation{id: uuid.NewString(), kind: kind, ticketID: ticketID, startedAt: s.now()}
	s.transition(ctx, m, domain.MutationPending, nil)
	return m
}

func (s *Store) transition(ctx context.Context, m *mutation, state domain.MutationState, err error) {
	payload := events.MutationPayload{
		MutationID: m.id,
		Kind:       m.kind,
		State:      state,
		StartedAt:  m.startedAt,
	}
	if err != nil {
		domainErr := apperrors.ToDomainError(err)
		payload.Code = domainErr.Code
		payload.Cause = domainErr.Cause
		payload.Message = err.Error()
	}

	eventType := events.EventMutationStarted
	switch state {
	case domain.MutationCommitted:
		eventType = events.EventMutationCommitted
	case domain.MutationRolledBack:
		eventType = events.EventMutationRolledBack
	case domain.MutationFailed:
		eventType = events.EventMutationFailed
	}
	if state.Settled() {
		s.metrics.RecordMutation(string(m.kind), string(state))
	}
	s.publish(ctx, events.NewEvent(eventType, s.sessionID, m.ticketID, s.now(), payload))
}

// Create sends draft to the gateway and appends the ticket it returns. Nothing is
// inserted before the gateway assigns an id.
func (s *Store) Create(ctx context.Context, draft domain.TicketDraft) (domain.Ticket, error) {
	draft = draft.Normalize()
	if err := validateDraft(draft); err != nil {
		return domain.Ticket{}, err
	}

	m := s.begin(ctx, domain.MutationCreate, "")
	callCtx, cancel := s.callContext(ctx)
	created, err := s.gw.Create(callCtx, draft)
	cancel()
	if err != nil {
		opErr := operationError(apperrors.CodeCreateFailed, "create", "", err)
		s.transition(ctx, m, domain.MutationFailed, opErr)
		return domain.Ticket{}, opErr
	}

	created = created.Clone()
	m.ticketID = created.ID
	s.mu.Lock()
	if i := indexOf(s.base, created.ID); i >= 0 {
		s.logger.Warn("created ticket id already present, replacing", zap.String("ticket_id", created.ID))
		s.base[i] = created
	} else {
		s.base = append(s.base, created)
	}
	s.undo = nil
	s.recompute()
	s.mu.Unlock()

	s.transition(ctx, m, domain.MutationCommitted, nil)
	return created.Clone(), nil
}

// Update applies patch to the ticket immediately and sends it to the gateway. On
// failure the optimistic change is dropped before the error is returned.
func (s *Store) Update(ctx context.Context, id string, patch domain.TicketPatch) (domain.Ticket, error) {
	patch = patch.Normalize()
	if patch.Empty() {
		return domain.Ticket{}, apperrors.NewValidationError("no fields to update", nil)
	}

	s.mu.Lock()
	i := indexOf(s.working, id)
	if i < 0 {
		s.mu.Unlock()
		return domain.Ticket{}, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	if _, busy := s.deltas[id]; busy {
		s.mu.Unlock()
		return domain.Ticket{}, apperrors.NewConflictPending("update", id)
	}
	if err := validatePatched(patch.Apply(s.working[i]), patch); err != nil {
		s.mu.Unlock()
		return domain.Ticket{}, err
	}
	appliedAt := s.now()
	m := &mutation{id: uuid.NewString(), kind: domain.MutationUpdate, ticketID: id, startedAt: appliedAt}
	s.deltas[id] = &delta{mutationID: m.id, kind: deltaUpdate, patch: patch, appliedAt: appliedAt}
	s.recompute()
	s.mu.Unlock()
	s.transition(ctx, m, domain.MutationPending, nil)

	callCtx, cancel := s.callContext(ctx)
	confirmed, err := s.gw.Update(callCtx, id, patch)
	cancel()

	s.mu.Lock()
	delete(s.deltas, id)
	if err != nil {
		s.recompute()
		s.mu.Unlock()
		opErr := operationError(apperrors.CodeUpdateFailed, "update", id, err)
		s.logger.Warn("update failed, changes reverted", zap.String("ticket_id", id), zap.Error(err))
		s.transition(ctx, m, domain.MutationRolledBack, opErr)
		return domain.Ticket{}, opErr
	}

	var result domain.Ticket
	if bi := indexOf(s.base, id); bi >= 0 {
		if confirmed != nil {
			result = confirmed.Clone()
			result.ID = id
		} else {
			result = patch.Apply(s.base[bi])
			result.UpdatedAt = appliedAt
		}
		s.base[bi] = result
	} else {
		s.logger.Warn("updated ticket vanished from collection before confirmation", zap.String("ticket_id", id))
		if confirmed == nil {
			// Accepted upstream, but there is nothing left to show the caller.
			s.undo = nil
			s.recompute()
			s.mu.Unlock()
			s.transition(ctx, m, domain.MutationCommitted, nil)
			return domain.Ticket{}, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		result = confirmed.Clone()
	}
	s.undo = nil
	s.recompute()
	s.mu.Unlock()

	s.transition(ctx, m, domain.MutationCommitted, nil)
	return result.Clone(), nil
}

// Delete removes the ticket immediately and asks the gateway to delete it. On
// failure the ticket reappears at its original position. On success it is kept
// for one UndoLastDelete.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if indexOf(s.working, id) < 0 {
		s.mu.Unlock()
		return apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	if _, busy := s.deltas[id]; busy {
		s.mu.Unlock()
		return apperrors.NewConflictPending("delete", id)
	}
	s.undo = nil
	appliedAt := s.now()
	m := &mutation{id: uuid.NewString(), kind: domain.MutationDelete, ticketID: id, startedAt: appliedAt}
	s.deltas[id] = &delta{mutationID: m.id, kind: deltaDelete, appliedAt: appliedAt}
	s.recompute()
	s.mu.Unlock()
	s.transition(ctx, m, domain.MutationPending, nil)

	callCtx, cancel := s.callContext(ctx)
	err := s.gw.Delete(callCtx, id)
	cancel()

	s.mu.Lock()
	delete(s.deltas, id)
	if err != nil {
		s.recompute()
		s.mu.Unlock()
		opErr := operationError(apperrors.CodeDeleteFailed, "delete", id, err)
		s.logger.Warn("delete failed, ticket restored", zap.String("ticket_id", id), zap.Error(err))
		s.transition(ctx, m, domain.MutationRolledBack, opErr)
		return opErr
	}
	if bi := indexOf(s.base, id); bi >= 0 {
		s.undo = &undoSlot{ticket: s.base[bi], index: bi}
		s.base = append(s.base[:bi:bi], s.base[bi+1:]...)
	}
	s.recompute()
	s.mu.Unlock()

	s.transition(ctx, m, domain.MutationCommitted, nil)
	return nil
}

// UndoLastDelete re-inserts the last deleted ticket at its former position. The
// gateway has no restore endpoint, so the restored ticket exists only locally
// until the next Load.
func (s *Store) UndoLastDelete(ctx context.Context) (domain.Ticket, error) {
	s.mu.Lock()
	if s.undo == nil {
		s.mu.Unlock()
		return domain.Ticket{}, apperrors.NewNotFound("deleted ticket", nil)
	}
	slot := s.undo
	s.undo = nil
	id := slot.ticket.ID
	_, pending := s.deltas[id]
	if pending || indexOf(s.base, id) >= 0 {
		s.mu.Unlock()
		return domain.Ticket{}, apperrors.NewConflict("ticket is already present", map[string]any{"id": id})
	}
	index := slot.index
	if index > len(s.base) {
		index = len(s.base)
	}
	s.base = append(s.base[:index], append([]domain.Ticket{slot.ticket}, s.base[index:]...)...)
	s.recompute()
	s.mu.Unlock()

	m := s.begin(ctx, domain.MutationUndo, id)
	s.transition(ctx, m, domain.MutationCommitted, nil)
	return slot.ticket.Clone(), nil
}

// AppendMessage sends text to the ticket's chat and appends the message the gateway
// acknowledged. Nothing is echoed locally before the gateway responds.
func (s *Store) AppendMessage(ctx context.Context, ticketID, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, apperrors.NewValidationError("message text required", nil)
	}
	s.mu.Lock()
	known := indexOf(s.working, ticketID) >= 0
	s.mu.Unlock()
	if !known {
		return domain.ChatMessage{}, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}

	m := s.begin(ctx, domain.MutationChat, ticketID)
	callCtx, cancel := s.callContext(ctx)
	ticket, err := s.gw.AppendChat(callCtx, ticketID, text)
	cancel()
	if err == nil {
		err = acknowledged(ticket)
	}
	if err != nil {
		opErr := operationError(apperrors.CodeChatSendFailed, "chat", ticketID, err)
		s.transition(ctx, m, domain.MutationFailed, opErr)
		return domain.ChatMessage{}, opErr
	}
	msg := ticket.Chat[len(ticket.Chat)-1]

	s.mu.Lock()
	if bi := indexOf(s.base, ticketID); bi >= 0 {
		chat := make([]domain.ChatMessage, 0, len(s.base[bi].Chat)+1)
		chat = append(chat, s.base[bi].Chat...)
		s.base[bi].Chat = append(chat, msg)
	} else {
		s.logger.Warn("chat target vanished from collection before acknowledgement", zap.String("ticket_id", ticketID))
	}
	s.undo = nil
	s.recompute()
	s.mu.Unlock()

	s.transition(ctx, m, domain.MutationCommitted, nil)
	return msg, nil
}

var errNoMessage = errors.New("gateway response carries no timestamped message")

func acknowledged(t domain.Ticket) error {
	if len(t.Chat) == 0 {
		return errNoMessage
	}
	if t.Chat[len(t.Chat)-1].CreatedAt.IsZero() {
		return errNoMessage
	}
	return nil
}

func validateDraft(d domain.TicketDraft) error {
	missing := make([]string, 0, 3)
	if d.ClientName == "" {
		missing = append(missing, "clientName")
	}
	if d.ClientNumber == "" {
		missing = append(missing, "clientNumber")
	}
	if d.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("required fields missing", map[string]any{"fields": missing})
	}
	if !d.Status.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": string(d.Status)})
	}
	return nil
}

func validatePatched(t domain.Ticket, patch domain.TicketPatch) error {
	missing := make([]string, 0, 2)
	if strings.TrimSpace(t.ClientName) == "" {
		missing = append(missing, "clientName")
	}
	if strings.TrimSpace(t.ClientNumber) == "" {
		missing = append(missing, "clientNumber")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("required fields missing", map[string]any{"fields": missing})
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": string(*patch.Status)})
	}
	return nil
}

// operationError wraps a gateway failure with its failure code and a cause.
func operationError(code, op, ticketID string, err error) error {
	return apperrors.NewOperationFailed(code, op, ticketID, causeOf(err), err)
}

func causeOf(err error) string {
	var statusErr *gateway.StatusError
	switch {
	case gateway.IsUnauthorized(err):
		return apperrors.CauseUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.CauseTimeout
	case errors.Is(err, gateway.ErrRejected), errors.Is(err, errNoMessage), errors.As(err, &statusErr):
		return apperrors.CauseGateway
	default:
		return apperrors.CauseTransport
	}
}

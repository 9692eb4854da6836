// Package store keeps an in-memory mirror of the remote ticket collection and applies
// optimistic updates and deletes on top of it.
//
// The store holds two layers: the base, which is the last state the gateway confirmed,
// and a set of pending deltas, one per ticket with an update or delete in flight. The
// working set that callers observe is always recomputed from the two. Committing a
// delta folds it into the base; rolling it back simply drops it.
package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/gateway"
	"github.com/spec-kit/ticket-desk/internal/observability"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// Options configures a Store. Zero values are valid.
type Options struct {
	Logger     *zap.Logger
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	// Timeout bounds every gateway call. Zero means only the caller's context applies.
	Timeout time.Duration
	Clock   func() time.Time
	// SessionID is stamped on published events.
	SessionID string
}

// Store is the ticket collection owned by one dashboard session.
type Store struct {
	gw         gateway.Gateway
	logger     *zap.Logger
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	timeout    time.Duration
	now        func() time.Time
	sessionID  string

	mu         sync.Mutex
	base       []domain.Ticket
	deltas     map[string]*delta
	working    []domain.Ticket
	issuedSeq  uint64
	appliedSeq uint64
	loading    int
	loaded     bool
	undo       *undoSlot
}

// New creates an empty store backed by gw.
func New(gw gateway.Gateway, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		gw:         gw,
		logger:     opts.Logger,
		dispatcher: opts.Dispatcher,
		metrics:    opts.Metrics,
		timeout:    opts.Timeout,
		now:        opts.Clock,
		sessionID:  opts.SessionID,
		deltas:     make(map[string]*delta),
	}
}

// Load replaces the base with the gateway's full collection. Pending deltas are
// re-applied on top of the new base. A response older than one already applied
// is discarded.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.issuedSeq++
	seq := s.issuedSeq
	s.loading++
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	tickets, err := s.gw.List(callCtx)
	cancel()

	s.mu.Lock()
	s.loading--
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("load tickets failed", zap.Uint64("seq", seq), zap.Error(err))
		return operationError(apperrors.CodeFetchFailed, "load", "", err)
	}
	if seq < s.appliedSeq {
		applied := s.appliedSeq
		s.mu.Unlock()
		s.logger.Info("discarding stale load response",
			zap.Uint64("seq", seq), zap.Uint64("applied_seq", applied))
		return nil
	}
	s.appliedSeq = seq
	base, duplicates := dedupe(tickets)
	s.base = base
	s.loaded = true
	s.undo = nil
	s.recompute()
	count := len(s.working)
	s.mu.Unlock()

	if duplicates > 0 {
		s.logger.Warn("gateway returned duplicate ticket ids", zap.Int("dropped", duplicates))
	}
	s.publish(ctx, events.NewEvent(events.EventTicketsLoaded, s.sessionID, "", s.now(),
		events.TicketsLoadedPayload{Count: count, Duplicates: duplicates}))
	return nil
}

// Loading reports whether any Load is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

// Loaded reports whether a Load has ever been applied.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// FilteredView returns copies of the working-set tickets matching filter, in order.
func (s *Store) FilteredView(filter domain.StatusFilter) []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Ticket, 0, len(s.working))
	for _, t := range s.working {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Get returns a copy of the ticket with id from the working set.
func (s *Store) Get(id string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.working, id); i >= 0 {
		return s.working[i].Clone(), true
	}
	return domain.Ticket{}, false
}

// InFlight reports whether an update or delete on id is pending.
func (s *Store) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.deltas[id]
	return ok
}

// LastDeleted returns the ticket that UndoLastDelete would restore.
func (s *Store) LastDeleted() (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.undo == nil {
		return domain.Ticket{}, false
	}
	return s.undo.ticket.Clone(), true
}

// recompute rebuilds the working set from base and deltas. Callers hold mu.
func (s *Store) recompute() {
	working := make([]domain.Ticket, 0, len(s.base))
	for _, t := range s.base {
		d, ok := s.deltas[t.ID]
		if !ok {
			working = append(working, t)
			continue
		}
		switch d.kind {
		case deltaDelete:
			continue
		case deltaUpdate:
			patched := d.patch.Apply(t)
			patched.UpdatedAt = d.appliedAt
			working = append(working, patched)
		}
	}
	s.working = working
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

func (s *Store) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	// Handlers persist settled mutations, so they must outlive a caller deadline
	// that may be the very reason the mutation failed.
	if err := s.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("store event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func dedupe(tickets []domain.Ticket) ([]domain.Ticket, int) {
	seen := make(map[string]struct{}, len(tickets))
	out := make([]domain.Ticket, 0, len(tickets))
	dropped := 0
	for _, t := range tickets {
		if _, ok := seen[t.ID]; ok {
			dropped++
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t.Clone())
	}
	return out, dropped
}

func indexOf(tickets []domain.Ticket, id string) int {
	for i := range tickets {
		if tickets[i].ID == id {
			return i
		}
	}
	return -1
}

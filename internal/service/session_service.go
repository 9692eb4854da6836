package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/gateway"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/store"
)

// StoreFactory builds the ticket store for a new session.
type StoreFactory func(token, sessionKey string) *store.Store

// StoreDependencies bundles what every session store shares.
type StoreDependencies struct {
	GatewayBaseURL string
	Timeout        time.Duration
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// NewGatewayStoreFactory returns a factory whose stores talk to the HTTP gateway
// with the session's own bearer token.
func NewGatewayStoreFactory(deps StoreDependencies) StoreFactory {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(token, sessionKey string) *store.Store {
		sessionLogger := logger.With(zap.String("session", sessionKey))
		gw := gateway.NewHTTPGateway(deps.GatewayBaseURL, auth.StaticToken(token),
			gateway.WithMetrics(deps.Metrics),
			gateway.WithLogger(sessionLogger),
		)
		return store.New(gw, store.Options{
			Logger:     sessionLogger,
			Dispatcher: deps.Dispatcher,
			Metrics:    deps.Metrics,
			Timeout:    deps.Timeout,
			SessionID:  sessionKey,
		})
	}
}

// Session is one dashboard caller and the ticket store it owns.
type Session struct {
	Key    string
	Store  *store.Store
	Claims *domain.DisplayClaims

	mu       sync.Mutex
	lastSeen time.Time
}

// EnsureLoaded loads the store on first use.
func (s *Session) EnsureLoaded(ctx context.Context) error {
	if s.Store.Loaded() {
		return nil
	}
	return s.Store.Load(ctx)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionService keeps one ticket store per authenticated dashboard session.
type SessionService struct {
	factory StoreFactory
	idleTTL time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionService constructs the registry.
func NewSessionService(factory StoreFactory, idleTTL time.Duration, logger *zap.Logger, metrics *observability.Metrics) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		factory:  factory,
		idleTTL:  idleTTL,
		now:      time.Now,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the caller's session, creating it and its store on first sight.
func (s *SessionService) Acquire(principal *auth.Principal) *Session {
	now := s.now()
	s.mu.Lock()
	sess, ok := s.sessions[principal.SessionKey]
	if !ok {
		sess = &Session{
			Key:    principal.SessionKey,
			Store:  s.factory(principal.Token, principal.SessionKey),
			Claims: principal.Claims,
		}
		s.sessions[principal.SessionKey] = sess
	}
	count := len(s.sessions)
	s.mu.Unlock()

	sess.touch(now)
	if !ok {
		s.metrics.SetActiveSessions(count)
		s.logger.Info("session opened", zap.String("session", principal.SessionKey))
	}
	return sess
}

// Discard drops a session and its store.
func (s *SessionService) Discard(key string) bool {
	s.mu.Lock()
	_, ok := s.sessions[key]
	delete(s.sessions, key)
	count := len(s.sessions)
	s.mu.Unlock()

	if ok {
		s.metrics.SetActiveSessions(count)
		s.logger.Info("session discarded", zap.String("session", key))
	}
	return ok
}

// Reap evicts sessions idle longer than the configured TTL and returns their keys.
func (s *SessionService) Reap(now time.Time) []string {
	if s.idleTTL <= 0 {
		return nil
	}
	s.mu.Lock()
	var evicted []string
	for key, sess := range s.sessions {
		if now.Sub(sess.idleSince()) > s.idleTTL {
			delete(s.sessions, key)
			evicted = append(evicted, key)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.metrics.SetActiveSessions(count)
		s.logger.Info("idle sessions reaped", zap.Int("count", len(evicted)))
	}
	return evicted
}

// Len reports the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

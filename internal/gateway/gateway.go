// Package gateway defines the remote ticket API the store synchronizes with and an HTTP
// implementation of it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/domain"
)

// Gateway is the remote system of record for tickets.
type Gateway interface {
	List(ctx context.Context) ([]domain.Ticket, error)
	Create(ctx context.Context, draft domain.TicketDraft) (domain.Ticket, error)
	// Update returns the server's view of the ticket, or nil if the response carried none.
	Update(ctx context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	// AppendChat returns the whole ticket; its last chat entry is the new message.
	AppendChat(ctx context.Context, id, text string) (domain.Ticket, error)
}

// ErrRejected is returned when the gateway answers with success=false.
var ErrRejected = errors.New("gateway rejected request")

// StatusError reports a non-2xx gateway response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway status %d: %s", e.StatusCode, e.Message)
}

// Unauthorized reports whether the gateway refused the credential.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsUnauthorized reports whether err carries a 401/403 gateway response or a missing credential.
func IsUnauthorized(err error) bool {
	if errors.Is(err, auth.ErrNoCredentials) {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Unauthorized()
}

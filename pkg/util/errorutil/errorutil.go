package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes reported by the ticket store and the dashboard API.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeFetchFailed      = "FETCH_FAILED"
	CodeCreateFailed     = "CREATE_FAILED"
	CodeUpdateFailed     = "UPDATE_FAILED"
	CodeDeleteFailed     = "DELETE_FAILED"
	CodeChatSendFailed   = "CHAT_SEND_FAILED"
	CodeConflictPending  = "CONFLICT_PENDING"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTimeout          = "TIMEOUT"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL_ERROR"
)

// Causes attached to network-origin failures.
const (
	CauseUnauthorized = "UNAUTHORIZED"
	CauseTimeout      = "TIMEOUT"
	CauseGateway      = "GATEWAY"
	CauseTransport    = "TRANSPORT"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Op         string
	TicketID   string
	Cause      string
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.TicketID != "" {
		msg = fmt.Sprintf("%s (ticket %s)", msg, e.TicketID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewConflictPending reports a second update/delete issued while one is in flight.
func NewConflictPending(op, ticketID string) error {
	return &DomainError{
		Code:       CodeConflictPending,
		Message:    "another change to this ticket is still pending",
		HTTPStatus: http.StatusConflict,
		Op:         op,
		TicketID:   ticketID,
	}
}

// NewOperationFailed wraps a gateway failure for op with the given failure code and cause.
func NewOperationFailed(code, op, ticketID, cause string, err error) error {
	return &DomainError{
		Code:       code,
		Message:    operationMessage(code),
		HTTPStatus: statusForCause(cause),
		Op:         op,
		TicketID:   ticketID,
		Cause:      cause,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// HasCause reports whether err is a DomainError carrying cause.
func HasCause(err error, cause string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Cause == cause
}

// IsUnauthorized matches both the UNAUTHORIZED code and operation failures caused by 401/403.
func IsUnauthorized(err error) bool {
	return HasCode(err, CodeUnauthorized) || HasCause(err, CauseUnauthorized)
}

// IsTimeout matches both the TIMEOUT code and operation failures caused by a deadline.
func IsTimeout(err error) bool {
	return HasCode(err, CodeTimeout) || HasCause(err, CauseTimeout)
}

func operationMessage(code string) string {
	switch code {
	case CodeFetchFailed:
		return "failed to fetch tickets"
	case CodeCreateFailed:
		return "failed to create ticket"
	case CodeUpdateFailed:
		return "failed to update ticket, changes reverted"
	case CodeDeleteFailed:
		return "failed to delete ticket, ticket restored"
	case CodeChatSendFailed:
		return "failed to send message"
	case CodeTimeout:
		return "gateway timed out"
	case CodeUnauthorized:
		return "gateway rejected credentials"
	default:
		return "gateway request failed"
	}
}

func statusForCause(cause string) int {
	switch cause {
	case CauseUnauthorized:
		return http.StatusUnauthorized
	case CauseTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

package domain

import "time"

// MutationKind names the store operation behind a mutation.
type MutationKind string

const (
	MutationCreate MutationKind = "CREATE"
	MutationUpdate MutationKind = "UPDATE"
	MutationDelete MutationKind = "DELETE"
	MutationChat   MutationKind = "CHAT"
	MutationUndo   MutationKind = "UNDO"
)

// MutationState tracks a mutation from issue to settlement.
type MutationState string

const (
	MutationIdle       MutationState = "IDLE"
	MutationPending    MutationState = "PENDING"
	MutationCommitted  MutationState = "COMMITTED"
	MutationRolledBack MutationState = "ROLLED_BACK"
	// MutationFailed is the terminal state of non-optimistic mutations that never applied.
	MutationFailed MutationState = "FAILED"
)

// Settled reports whether the state is terminal.
func (s MutationState) Settled() bool {
	return s == MutationCommitted || s == MutationRolledBack || s == MutationFailed
}

// MutationRecord is an immutable journal entry for a settled mutation.
type MutationRecord struct {
	ID        string
	SessionID string
	Kind      MutationKind
	TicketID  string
	State     MutationState
	ErrorCode string
	Cause     string
	StartedAt time.Time
	SettledAt time.Time
	Details   map[string]any
}

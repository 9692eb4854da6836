package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "Pending"
	TicketStatusCompleted TicketStatus = "Completed"
)

// Valid reports whether the status is one of the known values.
func (s TicketStatus) Valid() bool {
	return s == TicketStatusPending || s == TicketStatusCompleted
}

// Ticket is a customer support request mirrored from the gateway.
type Ticket struct {
	ID           string
	ClientName   string
	ClientEmail  string
	ClientNumber string
	Description  string
	Status       TicketStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Chat         []ChatMessage
}

// Clone returns a deep copy so callers never share the chat backing array.
func (t Ticket) Clone() Ticket {
	out := t
	if t.Chat != nil {
		out.Chat = make([]ChatMessage, len(t.Chat))
		copy(out.Chat, t.Chat)
	}
	return out
}

// TicketDraft is the payload used to create a ticket. The gateway assigns ID and CreatedAt.
type TicketDraft struct {
	ClientName   string
	ClientEmail  string
	ClientNumber string
	Description  string
	Status       TicketStatus
}

// Normalize trims text fields and defaults the status.
func (d TicketDraft) Normalize() TicketDraft {
	d.ClientName = strings.TrimSpace(d.ClientName)
	d.ClientEmail = strings.TrimSpace(d.ClientEmail)
	d.ClientNumber = strings.TrimSpace(d.ClientNumber)
	d.Description = strings.TrimSpace(d.Description)
	if d.Status == "" {
		d.Status = TicketStatusPending
	}
	return d
}

// TicketPatch describes a partial edit. Nil fields are left unchanged.
type TicketPatch struct {
	ClientName   *string
	ClientEmail  *string
	ClientNumber *string
	Description  *string
	Status       *TicketStatus
}

// Empty reports whether the patch changes nothing.
func (p TicketPatch) Empty() bool {
	return p.ClientName == nil && p.ClientEmail == nil && p.ClientNumber == nil &&
		p.Description == nil && p.Status == nil
}

// Normalize returns a copy of the patch with its text fields trimmed, matching
// TicketDraft.Normalize.
func (p TicketPatch) Normalize() TicketPatch {
	p.ClientName = trimmedPtr(p.ClientName)
	p.ClientEmail = trimmedPtr(p.ClientEmail)
	p.ClientNumber = trimmedPtr(p.ClientNumber)
	p.Description = trimmedPtr(p.Description)
	return p
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}

// Apply returns a copy of t with the patch fields written over it.
func (p TicketPatch) Apply(t Ticket) Ticket {
	out := t.Clone()
	if p.ClientName != nil {
		out.ClientName = *p.ClientName
	}
	if p.ClientEmail != nil {
		out.ClientEmail = *p.ClientEmail
	}
	if p.ClientNumber != nil {
		out.ClientNumber = *p.ClientNumber
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	return out
}

// StatusFilter selects which tickets a view shows.
type StatusFilter string

const (
	FilterAll       StatusFilter = "All"
	FilterPending   StatusFilter = "Pending"
	FilterCompleted StatusFilter = "Completed"
)

// Matches reports whether the ticket belongs in the filtered view.
func (f StatusFilter) Matches(t Ticket) bool {
	if f == FilterAll {
		return true
	}
	return string(t.Status) == string(f)
}

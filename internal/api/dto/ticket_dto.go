package dto

import (
	"time"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ClientName   string              `json:"client_name"`
	ClientEmail  string              `json:"client_email"`
	ClientNumber string              `json:"client_number"`
	Description  string              `json:"description"`
	Status       domain.TicketStatus `json:"status"`
}

// UpdateTicketRequest carries only the fields being changed.
type UpdateTicketRequest struct {
	ClientName   *string              `json:"client_name"`
	ClientEmail  *string              `json:"client_email"`
	ClientNumber *string              `json:"client_number"`
	Description  *string              `json:"description"`
	Status       *domain.TicketStatus `json:"status"`
}

// ChatMessageRequest payload.
type ChatMessageRequest struct {
	Text string `json:"text"`
}

// TicketResponse represents a ticket as the dashboard renders it.
type TicketResponse struct {
	ID           string                `json:"id"`
	ClientName   string                `json:"client_name"`
	ClientEmail  string                `json:"client_email,omitempty"`
	ClientNumber string                `json:"client_number"`
	Description  string                `json:"description"`
	Status       domain.TicketStatus   `json:"status"`
	CreatedAt    *time.Time            `json:"created_at"`
	UpdatedAt    *time.Time            `json:"updated_at"`
	Chat         []ChatMessageResponse `json:"chat"`
	Pending      bool                  `json:"pending"`
}

// ChatMessageResponse represents one chat entry. CreatedAt is null for legacy entries.
type ChatMessageResponse struct {
	Text      string     `json:"text"`
	CreatedAt *time.Time `json:"created_at"`
}

// ChatDayResponse groups messages by day.
type ChatDayResponse struct {
	Day      string                `json:"day"`
	Messages []ChatMessageResponse `json:"messages"`
}

// TicketListResponse is the filtered view plus store flags.
type TicketListResponse struct {
	Filter      domain.StatusFilter `json:"filter"`
	Loading     bool                `json:"loading"`
	Tickets     []TicketResponse    `json:"tickets"`
	LastDeleted *TicketResponse     `json:"last_deleted,omitempty"`
}

// NoticeResponse represents a dashboard notice.
type NoticeResponse struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	TicketID  string    `json:"ticket_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MutationRecordResponse represents one journal entry.
type MutationRecordResponse struct {
	ID        string               `json:"id"`
	Kind      domain.MutationKind  `json:"kind"`
	TicketID  string               `json:"ticket_id,omitempty"`
	State     domain.MutationState `json:"state"`
	ErrorCode string               `json:"error_code,omitempty"`
	Cause     string               `json:"cause,omitempty"`
	StartedAt time.Time            `json:"started_at"`
	SettledAt time.Time            `json:"settled_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t domain.Ticket, pending bool) TicketResponse {
	chat := make([]ChatMessageResponse, 0, len(t.Chat))
	for _, msg := range t.Chat {
		chat = append(chat, NewChatMessageResponse(msg))
	}
	return TicketResponse{
		ID:           t.ID,
		ClientName:   t.ClientName,
		ClientEmail:  t.ClientEmail,
		ClientNumber: t.ClientNumber,
		Description:  t.Description,
		Status:       t.Status,
		CreatedAt:    timePtr(t.CreatedAt),
		UpdatedAt:    timePtr(t.UpdatedAt),
		Chat:         chat,
		Pending:      pending,
	}
}

// NewChatMessageResponse maps a chat message.
func NewChatMessageResponse(msg domain.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{Text: msg.Text, CreatedAt: timePtr(msg.CreatedAt)}
}

// Draft converts the request into a store draft.
func (r CreateTicketRequest) Draft() domain.TicketDraft {
	return domain.TicketDraft{
		ClientName:   r.ClientName,
		ClientEmail:  r.ClientEmail,
		ClientNumber: r.ClientNumber,
		Description:  r.Description,
		Status:       r.Status,
	}
}

// Patch converts the request into a store patch.
func (r UpdateTicketRequest) Patch() domain.TicketPatch {
	return domain.TicketPatch{
		ClientName:   r.ClientName,
		ClientEmail:  r.ClientEmail,
		ClientNumber: r.ClientNumber,
		Description:  r.Description,
		Status:       r.Status,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package gateway

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type wireTicket struct {
	MongoID      string        `json:"_id,omitempty"`
	ID           string        `json:"id,omitempty"`
	ClientName   string        `json:"clientName"`
	ClientEmail  string        `json:"clientEmail,omitempty"`
	ClientNumber string        `json:"clientNumber"`
	Description  string        `json:"description"`
	Status       string        `json:"status,omitempty"`
	CreatedAt    *time.Time    `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time    `json:"updatedAt,omitempty"`
	Chat         []wireMessage `json:"chat,omitempty"`
}

// wireMessage accepts both {text, createdAt} objects and legacy bare strings.
type wireMessage struct {
	Text      string     `json:"text"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (m *wireMessage) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		m.CreatedAt = nil
		return json.Unmarshal(trimmed, &m.Text)
	}
	type plain wireMessage
	var out plain
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return err
	}
	*m = wireMessage(out)
	return nil
}

type draftRequest struct {
	ClientName   string `json:"clientName"`
	ClientEmail  string `json:"clientEmail"`
	ClientNumber string `json:"clientNumber"`
	Description  string `json:"description"`
	Status       string `json:"status"`
}

type patchRequest struct {
	ClientName   *string `json:"clientName,omitempty"`
	ClientEmail  *string `json:"clientEmail,omitempty"`
	ClientNumber *string `json:"clientNumber,omitempty"`
	Description  *string `json:"description,omitempty"`
	Status       *string `json:"status,omitempty"`
}

type chatRequest struct {
	TicketID string `json:"ticketId"`
	Message  string `json:"message"`
}

func (w wireTicket) toDomain() domain.Ticket {
	t := domain.Ticket{
		ID:           w.ID,
		ClientName:   w.ClientName,
		ClientEmail:  w.ClientEmail,
		ClientNumber: w.ClientNumber,
		Description:  w.Description,
		Status:       domain.TicketStatus(w.Status),
	}
	if t.ID == "" {
		t.ID = w.MongoID
	}
	if t.Status == "" {
		t.Status = domain.TicketStatusPending
	}
	if w.CreatedAt != nil {
		t.CreatedAt = *w.CreatedAt
	}
	if w.UpdatedAt != nil {
		t.UpdatedAt = *w.UpdatedAt
	}
	if len(w.Chat) > 0 {
		t.Chat = make([]domain.ChatMessage, 0, len(w.Chat))
		for _, msg := range w.Chat {
			t.Chat = append(t.Chat, msg.toDomain())
		}
	}
	return t
}

func (m wireMessage) toDomain() domain.ChatMessage {
	msg := domain.ChatMessage{Text: m.Text}
	if m.CreatedAt != nil {
		msg.CreatedAt = *m.CreatedAt
	}
	return msg
}

func newDraftRequest(d domain.TicketDraft) draftRequest {
	return draftRequest{
		ClientName:   d.ClientName,
		ClientEmail:  d.ClientEmail,
		ClientNumber: d.ClientNumber,
		Description:  d.Description,
		Status:       string(d.Status),
	}
}

func newPatchRequest(p domain.TicketPatch) patchRequest {
	req := patchRequest{
		ClientName:   p.ClientName,
		ClientEmail:  p.ClientEmail,
		ClientNumber: p.ClientNumber,
		Description:  p.Description,
	}
	if p.Status != nil {
		status := string(*p.Status)
		req.Status = &status
	}
	return req
}

package domain

import "time"

// ChatMessage is one entry of a ticket's chat thread. CreatedAt is assigned by the gateway.
type ChatMessage struct {
	Text      string
	CreatedAt time.Time
}

// ChatDay groups the messages sent on one calendar day.
type ChatDay struct {
	// Day is formatted as 2006-01-02, or "undated" for legacy untimestamped messages.
	Day      string
	Messages []ChatMessage
}

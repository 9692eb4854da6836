package domain

import "time"

// AuthTokens are the credentials issued by the external auth service at login.
type AuthTokens struct {
	AccessToken  string
	RefreshToken string
}

// DisplayClaims are fields decoded from an access token for presentation only.
// They are never used for authorization decisions.
type DisplayClaims struct {
	Subject   string
	Name      string
	Number    string
	Email     string
	IssuedAt  *time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the token's exp claim is before now.
func (c DisplayClaims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Notice is a user-facing message produced by a settled mutation.
type Notice struct {
	ID        string
	Level     string
	Text      string
	TicketID  string
	CreatedAt time.Time
}

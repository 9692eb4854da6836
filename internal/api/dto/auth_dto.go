package dto

import (
	"time"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Number   string `json:"number"`
	Password string `json:"password"`
}

// RegisterRequest payload.
type RegisterRequest struct {
	FullName string `json:"full_name"`
	Number   string `json:"number"`
	Password string `json:"password"`
}

// AuthResponse returns the upstream tokens and what the access token says about the caller.
type AuthResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	Claims       *ClaimsResponse `json:"claims,omitempty"`
}

// ClaimsResponse exposes display-only token claims.
type ClaimsResponse struct {
	Subject   string     `json:"subject,omitempty"`
	Name      string     `json:"name,omitempty"`
	Number    string     `json:"number,omitempty"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewClaimsResponse maps display claims; nil stays nil.
func NewClaimsResponse(c *domain.DisplayClaims) *ClaimsResponse {
	if c == nil {
		return nil
	}
	return &ClaimsResponse{
		Subject:   c.Subject,
		Name:      c.Name,
		Number:    c.Number,
		Email:     c.Email,
		ExpiresAt: c.ExpiresAt,
	}
}

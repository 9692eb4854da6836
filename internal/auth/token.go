package auth

import (
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

var errNotJWT = errors.New("token is not a JWT")

// ParseDisplayClaims decodes the access token's claims for presentation. The signature
// is NOT verified: the external auth service owns validation, so the result must never
// drive an authorization decision.
func ParseDisplayClaims(token string) (*domain.DisplayClaims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return nil, errNotJWT
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	out := &domain.DisplayClaims{
		Subject: stringClaim(claims, "sub", "_id", "id"),
		Name:    stringClaim(claims, "fullName", "name"),
		Number:  stringClaim(claims, "number"),
		Email:   stringClaim(claims, "email"),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		out.IssuedAt = &t
	}
	return out, nil
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

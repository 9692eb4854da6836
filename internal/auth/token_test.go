package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("any-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestParseDisplayClaims(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	token := signedToken(t, jwt.MapClaims{
		"_id":      "665f00",
		"fullName": "Ada Lovelace",
		"number":   "09120000000",
		"exp":      exp.Unix(),
	})

	claims, err := ParseDisplayClaims(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "665f00" || claims.Name != "Ada Lovelace" || claims.Number != "09120000000" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Equal(exp) {
		t.Errorf("expected exp %v, got %v", exp, claims.ExpiresAt)
	}
	if claims.Expired(exp.Add(-time.Hour)) {
		t.Error("expected token valid before exp")
	}
	if !claims.Expired(exp.Add(time.Hour)) {
		t.Error("expected token expired after exp")
	}
}

func TestParseDisplayClaimsOpaqueToken(t *testing.T) {
	if _, err := ParseDisplayClaims("opaque-session-token"); err == nil {
		t.Fatal("expected error for non-JWT token")
	}
}

func TestSessionKeyIsStableAndHidesToken(t *testing.T) {
	a := SessionKey("token-a")
	if a != SessionKey("  token-a ") {
		t.Error("expected surrounding whitespace to be ignored")
	}
	if a == SessionKey("token-b") {
		t.Error("expected distinct tokens to produce distinct keys")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
}

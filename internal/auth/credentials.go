package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ErrNoCredentials is returned when no bearer token is available.
var ErrNoCredentials = errors.New("no credentials available")

// CredentialProvider supplies the opaque bearer token attached to gateway requests.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(t))
	if token == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}

// TokenFunc adapts a function to CredentialProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// FileToken reads the token from a file on every call so a refreshed token is picked up.
type FileToken struct {
	Path string
}

func (f FileToken) Token(context.Context) (string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredentials
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return StaticToken(raw).Token(context.Background())
}

// SessionKey derives a stable identifier for a bearer token so the raw token is
// never used as a map key or written to logs.
func SessionKey(token string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:16])
}

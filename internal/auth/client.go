package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// Client calls the external auth service that issues dashboard credentials.
type Client struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient builds an auth service client rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: httpClient, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

type loginRequest struct {
	Number   string `json:"number"`
	Password string `json:"password"`
}

type registerRequest struct {
	FullName string `json:"fullName"`
	Number   string `json:"number"`
	Password string `json:"password"`
}

type authEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"data"`
}

// Login exchanges a phone number and password for access and refresh tokens.
func (c *Client) Login(ctx context.Context, number, password string) (domain.AuthTokens, error) {
	if strings.TrimSpace(number) == "" || password == "" {
		return domain.AuthTokens{}, apperrors.NewValidationError("number and password required", nil)
	}
	env, status, err := c.post(ctx, "/user/login", loginRequest{Number: strings.TrimSpace(number), Password: password})
	if err != nil {
		return domain.AuthTokens{}, err
	}
	if status >= 500 {
		return domain.AuthTokens{}, apperrors.NewInternalError(fmt.Errorf("auth service status %d", status))
	}
	if status < 200 || status > 299 || !env.Success || env.Data.AccessToken == "" {
		return domain.AuthTokens{}, apperrors.NewUnauthorized("invalid details")
	}
	return domain.AuthTokens{AccessToken: env.Data.AccessToken, RefreshToken: env.Data.RefreshToken}, nil
}

// Register creates an account on the auth service.
func (c *Client) Register(ctx context.Context, fullName, number, password string) error {
	if strings.TrimSpace(fullName) == "" || strings.TrimSpace(number) == "" || password == "" {
		return apperrors.NewValidationError("fullName, number, password required", nil)
	}
	env, status, err := c.post(ctx, "/user/register", registerRequest{
		FullName: strings.TrimSpace(fullName),
		Number:   strings.TrimSpace(number),
		Password: password,
	})
	if err != nil {
		return err
	}
	if status >= 500 {
		return apperrors.NewInternalError(fmt.Errorf("auth service status %d", status))
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "signup failed"
		}
		return apperrors.NewValidationError(msg, nil)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*authEnvelope, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("auth service unreachable", zap.String("path", path), zap.Error(err))
		return nil, 0, apperrors.NewInternalError(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, apperrors.NewInternalError(fmt.Errorf("read response: %w", err))
	}
	env := &authEnvelope{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, env); err != nil && resp.StatusCode < 300 {
			return nil, 0, apperrors.NewInternalError(fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return env, resp.StatusCode, nil
}

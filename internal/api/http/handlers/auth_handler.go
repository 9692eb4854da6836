package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/api/dto"
	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/service"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// AuthHandler proxies login and sign-up to the auth service and manages dashboard sessions.
type AuthHandler struct {
	client        *auth.Client
	sessions      *service.SessionService
	notifications *service.NotificationService
	logger        *zap.Logger
}

// NewAuthHandler constructs handler.
func NewAuthHandler(client *auth.Client, sessions *service.SessionService, notifications *service.NotificationService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{client: client, sessions: sessions, notifications: notifications, logger: logger}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	tokens, err := h.client.Login(c.UserContext(), req.Number, req.Password)
	if err != nil {
		return err
	}
	resp := dto.AuthResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}
	if claims, err := auth.ParseDisplayClaims(tokens.AccessToken); err == nil {
		resp.Claims = dto.NewClaimsResponse(claims)
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Register POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.client.Register(c.UserContext(), req.FullName, req.Number, req.Password); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"registered": true}})
}

// Me GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("bearer token required")
	}
	expired := principal.Claims != nil && principal.Claims.Expired(time.Now())
	return c.JSON(fiber.Map{"data": fiber.Map{
		"session": principal.SessionKey,
		"claims":  dto.NewClaimsResponse(principal.Claims),
		"expired": expired,
	}})
}

// Logout POST /auth/logout drops the caller's store and notices.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("bearer token required")
	}
	h.sessions.Discard(principal.SessionKey)
	if h.notifications != nil {
		if err := h.notifications.Clear(c.UserContext(), principal.SessionKey); err != nil {
			h.logger.Warn("clear notices failed", zap.String("session", principal.SessionKey), zap.Error(err))
		}
	}
	return c.SendStatus(http.StatusNoContent)
}

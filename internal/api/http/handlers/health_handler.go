package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/persistence"
)

const readinessTimeout = 2 * time.Second

// backend is an optional store the desk can run without: Postgres backs the
// mutation journal, Redis the notice feed.
type backend interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	backends    map[string]backend
}

// NewHealthHandler returns a new handler instance. Either backend may be nil when not configured.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		backends:    map[string]backend{"postgres": postgres, "redis": redis},
	}
}

// Live reports that the process is serving. Ticket data lives on the gateway,
// so liveness never depends on it.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready fails only when a configured journal or notice backend stops answering.
// A backend left unconfigured is reported as "disabled"; the desk then falls back
// to in-memory notices and skips journaling.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	deps := fiber.Map{}
	ready := true
	for name, b := range h.backends {
		status := backendStatus(ctx, b)
		deps[name] = status
		if status != "ok" && status != "disabled" {
			ready = false
		}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "a configured backend is not answering",
				"details": deps,
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": deps})
}

func backendStatus(ctx context.Context, b backend) string {
	if !b.Enabled() {
		return "disabled"
	}
	if err := b.Ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

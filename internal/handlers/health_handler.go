package handlers

import (
	"context"
	"time"

	"github.com/Soumit27/eazzgrievnce/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency the readiness probe checks.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, fiber.StatusOK, "OK", fiber.Map{
		"status": "healthy",
	})
}

// Ready reports 503 when any dependency fails its ping.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	ready := true
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			status[name] = err.Error()
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.Response{
			Success: false,
			Error:   "Service not ready",
			Data:    status,
		})
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Ready", status)
}

package middleware

import (
	"strings"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ActionLoggerConfig struct {
	SkipPaths   []string
	SkipMethods []string
}

// ActionLogger writes one audit line per authenticated request, naming the
// actor, the action taken and the resource it targeted.
func ActionLogger(config ActionLoggerConfig) fiber.Handler {
	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	skipMethods := make(map[string]bool)
	for _, method := range config.SkipMethods {
		skipMethods[method] = true
	}

	return func(c *fiber.Ctx) error {
		if skipPaths[c.Path()] || skipMethods[c.Method()] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		actor, ok := ActorFrom(c)
		if !ok {
			return err
		}

		status := c.Response().StatusCode()
		entry := logger.Log.WithFields(logrus.Fields{
			"actor_id":    actor.ID.String(),
			"role":        string(actor.Role),
			"action":      actionFromPath(c.Method(), c.Path()),
			"resource_id": c.Params("id"),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		})

		switch {
		case err != nil:
			entry.WithError(err).Warn("action failed")
		case status >= 400:
			entry.Warn("action refused")
		default:
			entry.Info("action")
		}
		return err
	}
}

// actionFromPath names a request by its last non-id path segment, so
// POST /api/v1/complaints/<id>/verify becomes "verify" and
// POST /api/v1/workers becomes "create workers".
func actionFromPath(method, path string) string {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })

	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "api" || seg == "v1" || isUUID(seg) {
			continue
		}
		if i > 0 && isUUID(segments[i-1]) {
			return seg
		}
		return verbFromMethod(method) + " " + seg
	}
	return "unknown"
}

func verbFromMethod(method string) string {
	switch method {
	case fiber.MethodPost:
		return "create"
	case fiber.MethodPut, fiber.MethodPatch:
		return "update"
	case fiber.MethodDelete:
		return "delete"
	case fiber.MethodGet:
		return "view"
	default:
		return "other"
	}
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

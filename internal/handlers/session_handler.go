package handlers

import (
	"context"
	"time"

	"github.com/Soumit27/eazzgrievnce/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// TokenRevoker blacklists a bearer token until it would have expired anyway.
type TokenRevoker interface {
	BlacklistToken(ctx context.Context, token string, expiration time.Duration) error
}

type SessionHandler struct {
	revoker TokenRevoker
}

func NewSessionHandler(revoker TokenRevoker) *SessionHandler {
	return &SessionHandler{revoker: revoker}
}

func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals("token").(string)
	if token == "" {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not authenticated")
	}

	ttl := time.Hour
	if exp, ok := c.Locals("token_expires_at").(time.Time); ok {
		ttl = time.Until(exp)
	}
	if ttl <= 0 {
		return utils.SuccessResponse(c, fiber.StatusOK, "Logged out", nil)
	}

	if err := h.revoker.BlacklistToken(c.Context(), token, ttl); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to revoke token")
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Logged out", nil)
}

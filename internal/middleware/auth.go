package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// TokenBlacklist reports revoked tokens.
type TokenBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}

type AuthMiddleware struct {
	jwtManager *utils.JWTManager
	blacklist  TokenBlacklist
}

// NewAuthMiddleware builds the identity middleware. blacklist may be nil.
func NewAuthMiddleware(jwtManager *utils.JWTManager, blacklist TokenBlacklist) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		blacklist:  blacklist,
	}
}

func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string

		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}

		if token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Missing authorization token")
		}

		if m.blacklist != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			isBlacklisted, err := m.blacklist.IsTokenBlacklisted(ctx, token)
			cancel()
			if err != nil {
				logger.Log.WithError(err).Error("Token blacklist lookup failed")
				return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to validate token")
			}
			if isBlacklisted {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Token has been revoked")
			}
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("email", claims.Email)
		c.Locals("role", string(models.ParseRole(claims.Role)))
		c.Locals("token", token)
		if claims.ExpiresAt != nil {
			c.Locals("token_expires_at", claims.ExpiresAt.Time)
		}

		return c.Next()
	}
}

func (m *AuthMiddleware) RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		if !ok {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not authenticated")
		}
		if actor.HasRole(roles...) {
			return c.Next()
		}
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Insufficient permissions")
	}
}

// ActorFrom returns the authenticated identity stored by Authenticate.
func ActorFrom(c *fiber.Ctx) (models.Actor, bool) {
	userID, ok := c.Locals("user_id").(uuid.UUID)
	if !ok {
		return models.Actor{}, false
	}
	role, _ := c.Locals("role").(string)
	return models.Actor{ID: userID, Role: models.Role(role)}, true
}

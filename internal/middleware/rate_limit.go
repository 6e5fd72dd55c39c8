package middleware

import (
	"strconv"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit limits requests per client IP. Defaults to 10 per minute.
func RateLimit(limit int64, period time.Duration) fiber.Handler {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = time.Minute
	}

	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: period,
		Limit:  limit,
	})

	return func(c *fiber.Ctx) error {
		ctx, err := instance.Get(c.UserContext(), c.IP())
		if err != nil {
			logger.Log.WithError(err).Error("Rate limiter lookup failed")
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error")
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))

		if ctx.Reached {
			return utils.ErrorResponse(c, fiber.StatusTooManyRequests, "Too many requests, try again later")
		}
		return c.Next()
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"receivables/internal/caching"
	"receivables/internal/common"
)

// RateLimit caps requests per client IP on public routes such as the payment
// page. Limiter failures let the request through.
func RateLimit(limiter caching.RateLimiter, scope string, limit int, window time.Duration, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := scope + ":" + c.RealIP()
			limited, err := limiter.IsRateLimited(c.Request().Context(), key, limit, window)
			if err != nil {
				logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
				return next(c)
			}
			if limited {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				return c.JSON(http.StatusTooManyRequests, common.CreateErrorResponse("RATE_LIMITED", "Too many requests", nil))
			}
			return next(c)
		}
	}
}

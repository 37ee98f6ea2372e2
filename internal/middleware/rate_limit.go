package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/knotapp/knot/internal/models"
	"github.com/knotapp/knot/pkg/ratelimit"
)

// RateLimitByUser throttles an action per authenticated user using the shared
// token bucket. Must run after JWTAuthMiddleware.
func RateLimitByUser(limiter *ratelimit.Limiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := c.Get("user").(*models.JwtCustomClaims)
			if !ok || claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}
			if !limiter.Allow(c.Request().Context(), ratelimit.UserKey(action, claims.UserID)) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, slow down")
			}
			return next(c)
		}
	}
}

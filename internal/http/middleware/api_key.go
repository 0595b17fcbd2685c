package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/marketgate/mp-gateway/internal/repository"
)

// ConnectionIDFromCtx extracts the authenticated connection id set by
// APIKeyMiddleware.
func ConnectionIDFromCtx(c echo.Context) (int64, bool) {
	v := c.Get("connection_id")
	id, ok := v.(int64)
	return id, ok
}

// APIKeyMiddleware authenticates /v1 requests by the X-API-Key header. On
// success it stores connection_id in context; suspended connections are
// rejected the same as unknown keys.
func APIKeyMiddleware(connections repository.ConnectionsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			conn, err := connections.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if conn == nil || conn.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set("connection_id", conn.ID)
			if conn.RateLimitRPS != nil {
				c.Set("connection_rps", *conn.RateLimitRPS)
			}
			return next(c)
		}
	}
}

package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/marketgate/mp-gateway/internal/repository"
	"github.com/marketgate/mp-gateway/internal/webhook"
)

// webhookHandler ingests one provider delivery. Once verified the answer is
// always 200: providers treat any other status as a failure and redeliver,
// and redeliveries are already absorbed by dedup.
func webhookHandler(connections repository.ConnectionsRepository, events *webhook.Processor) echo.HandlerFunc {
	return func(c echo.Context) error {
		connID, err := strconv.ParseInt(c.Param("connection_id"), 10, 64)
		if err != nil || connID <= 0 {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown connection"})
		}

		conn, err := connections.GetByID(c.Request().Context(), connID)
		if err != nil {
			log.Errorf("webhook connection lookup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if conn == nil || conn.Status != "active" {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown connection"})
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		creds := webhook.Credentials{
			APIKey: c.Request().Header.Get("X-Webhook-Key"),
		}
		if user, pass, ok := c.Request().BasicAuth(); ok {
			creds.BasicUser, creds.BasicPass = user, pass
		}

		res, err := events.Process(c.Request().Context(), conn, creds, body)
		switch {
		case errors.Is(err, webhook.ErrVerifyFailed):
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "verification_failed"})
		case errors.Is(err, webhook.ErrBadPayload):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad payload"})
		case err != nil:
			log.Errorf("webhook processing failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"delivery_id": res.DeliveryID,
			"dedup_hit":   res.DedupHit,
		})
	}
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/marketgate/mp-gateway/internal/engine"
	"github.com/marketgate/mp-gateway/internal/http/middleware"
	"github.com/marketgate/mp-gateway/internal/model"
)

type submitJobReq struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func submitJobHandler(queue *engine.Queue) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req submitJobReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		jt, ok := model.ParseJobType(req.Type)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid job type"})
		}

		connID, ok := middleware.ConnectionIDFromCtx(c)
		if !ok || connID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		jobID, err := queue.Submit(c.Request().Context(), connID, jt, req.Payload)
		switch {
		case errors.Is(err, engine.ErrConnectionBusy):
			return c.JSON(http.StatusConflict, map[string]string{
				"error":       "connection_busy",
				"description": "another job is already running for this connection",
			})
		case errors.Is(err, engine.ErrQueueFull):
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "queue_full"})
		case err != nil:
			log.Errorf("job submit failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"job_id": jobID,
			"type":   jt.String(),
		})
	}
}

func syncStatusHandler(queue *engine.Queue) echo.HandlerFunc {
	return func(c echo.Context) error {
		connID, ok := middleware.ConnectionIDFromCtx(c)
		if !ok || connID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		st, err := queue.Status(c.Request().Context(), connID)
		if err != nil {
			log.Errorf("sync status failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, st)
	}
}

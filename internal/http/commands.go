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

type commandReq struct {
	CommandType    string          `json:"command_type"`
	TargetID       string          `json:"target_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Actor          string          `json:"actor"`
	Payload        json.RawMessage `json:"payload"`
}

// executeCommandHandler runs one write action synchronously. Resubmission
// with the same idempotency key replays the stored outcome.
func executeCommandHandler(commands *engine.CommandHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req commandReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		ct, ok := model.ParseCommandType(req.CommandType)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid command type"})
		}

		connID, ok := middleware.ConnectionIDFromCtx(c)
		if !ok || connID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		cmd, replayed, err := commands.Execute(c.Request().Context(), engine.CommandRequest{
			ConnectionID:   connID,
			Type:           ct,
			TargetID:       req.TargetID,
			IdempotencyKey: req.IdempotencyKey,
			Actor:          req.Actor,
			Payload:        req.Payload,
		})
		switch {
		case errors.Is(err, engine.ErrInvalidCommand):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, engine.ErrCommandInFlight):
			return c.JSON(http.StatusConflict, map[string]string{
				"error":       "command_in_flight",
				"description": "a command with this idempotency key is still running",
			})
		case err != nil:
			log.Errorf("command execute failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		resp := map[string]any{
			"command_id": cmd.ID,
			"status":     cmd.Status.String(),
			"idempotent": replayed,
		}
		if cmd.Error != nil {
			resp["error"] = *cmd.Error
		}
		return c.JSON(http.StatusOK, resp)
	}
}

package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/marketgate/mp-gateway/internal/http/middleware"
	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/repository"
)

type entityView struct {
	ID           string          `json:"id"`
	ResourceType string          `json:"resource_type"`
	RemoteID     string          `json:"remote_id"`
	Status       string          `json:"status"`
	Title        string          `json:"title"`
	Amount       int64           `json:"amount"`
	Raw          json.RawMessage `json:"raw"`
	UpdatedAt    string          `json:"updated_at"`
}

func toEntityView(e model.Entity) entityView {
	return entityView{
		ID:           e.ID,
		ResourceType: e.ResourceType.String(),
		RemoteID:     e.RemoteID,
		Status:       e.Status,
		Title:        e.Title,
		Amount:       e.Amount,
		Raw:          e.Raw,
		UpdatedAt:    e.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// getEntityHandler resolves :ref by local id first, then by remote id.
func getEntityHandler(entities repository.EntitiesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		connID, ok := middleware.ConnectionIDFromCtx(c)
		if !ok || connID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		ref := c.Param("ref")
		if ref == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing ref"})
		}

		e, err := entities.GetByRef(c.Request().Context(), connID, ref)
		if err != nil {
			log.Errorf("entity lookup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if e == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		return c.JSON(http.StatusOK, toEntityView(*e))
	}
}

func listEntitiesHandler(entities repository.EntitiesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		connID, ok := middleware.ConnectionIDFromCtx(c)
		if !ok || connID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		resource, ok := model.ParseResourceType(c.QueryParam("resource"))
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid resource"})
		}
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		ctx := c.Request().Context()
		list, err := entities.ListByResource(ctx, connID, resource, limit, offset)
		if err != nil {
			log.Errorf("entity list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		total, err := entities.CountByResource(ctx, connID, resource)
		if err != nil {
			log.Errorf("entity count failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		views := make([]entityView, 0, len(list))
		for _, e := range list {
			views = append(views, toEntityView(e))
		}
		return c.JSON(http.StatusOK, map[string]any{
			"items": views,
			"total": total,
		})
	}
}

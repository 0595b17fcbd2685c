package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/marketgate/mp-gateway/internal/http/middleware"
	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/repository"
)

// auditReportHandler lists status-change history from the ClickHouse read
// side. Optional filters: resource, remote_id; limit/offset paging.
func auditReportHandler(audit repository.CHAuditRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		connID, ok := middleware.ConnectionIDFromCtx(c)
		if !ok || connID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var resource model.ResourceType
		if s := c.QueryParam("resource"); s != "" {
			r, ok := model.ParseResourceType(s)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid resource"})
			}
			resource = r
		}
		remoteID := c.QueryParam("remote_id")
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		rows, err := audit.ListByConnection(c.Request().Context(), connID, resource, remoteID, limit, offset)
		if err != nil {
			log.Errorf("audit report failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"items": rows})
	}
}

package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/marketgate/mp-gateway/internal/config"
	"github.com/marketgate/mp-gateway/internal/engine"
	"github.com/marketgate/mp-gateway/internal/http/middleware"
	"github.com/marketgate/mp-gateway/internal/metrics"
	"github.com/marketgate/mp-gateway/internal/repository"
	"github.com/marketgate/mp-gateway/internal/webhook"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client,
	queue *engine.Queue, commands *engine.CommandHandler, events *webhook.Processor) *Server {
	// repos (MySQL)
	connectionsRepo := repository.NewConnectionsRepository(mysqlDB)
	entitiesRepo := repository.NewEntitiesRepository(mysqlDB)

	// repos (ClickHouse)
	chAuditRepo := repository.NewCHAuditRepository(clickhouseDB)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(connectionsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:conn:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/jobs", submitJobHandler(queue))
	v1.GET("/sync-status", syncStatusHandler(queue))
	v1.POST("/commands", executeCommandHandler(commands))
	v1.GET("/entities", listEntitiesHandler(entitiesRepo))
	v1.GET("/entities/:ref", getEntityHandler(entitiesRepo))
	v1.GET("/reports/audit", auditReportHandler(chAuditRepo))

	// webhook ingress carries the provider's own credentials, not ours
	e.POST("/webhooks/:connection_id/events", webhookHandler(connectionsRepo, events))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

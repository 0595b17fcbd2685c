package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketgate/mp-gateway/internal/config"
	"github.com/marketgate/mp-gateway/internal/db"
	"github.com/marketgate/mp-gateway/internal/engine"
	httpSrv "github.com/marketgate/mp-gateway/internal/http"
	"github.com/marketgate/mp-gateway/internal/lock"
	"github.com/marketgate/mp-gateway/internal/logger"
	"github.com/marketgate/mp-gateway/internal/policy"
	"github.com/marketgate/mp-gateway/internal/remote"
	"github.com/marketgate/mp-gateway/internal/repository"
	"github.com/marketgate/mp-gateway/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server and in-process job workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.PoolOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, db.PoolOpts{
			MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
			PingTimeout:     cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		// repositories
		connectionsRepo := repository.NewConnectionsRepository(mysqlDB)
		jobsRepo := repository.NewJobsRepository(mysqlDB)
		cursorsRepo := repository.NewCursorsRepository(mysqlDB)
		entitiesRepo := repository.NewEntitiesRepository(mysqlDB)
		auditRepo := repository.NewAuditRepository(mysqlDB)
		commandsRepo := repository.NewCommandsRepository(mysqlDB, entitiesRepo, auditRepo)
		outboxRepo := repository.NewOutboxRepository(mysqlDB)
		webhooksRepo := repository.NewWebhooksRepository(mysqlDB, outboxRepo)

		// engine
		client := remote.NewHTTPClient(cfg.Remote.Timeout, cfg.Remote.APIKeyHeader, remote.BreakerOpts{
			FailThreshold: cfg.Remote.Breaker.FailThreshold,
			OpenFor:       cfg.Remote.Breaker.OpenFor,
		})
		locker := lock.NewRedisLocker(redisClient, cfg.Engine.LockTTL)

		syncHandler := engine.NewSyncHandler(connectionsRepo, entitiesRepo, cursorsRepo, auditRepo,
			client, policy.Profile{
				MaxAttempts: cfg.Engine.Sync.MaxAttempts,
				MinDelay:    cfg.Engine.Sync.MinDelay,
				MaxDelay:    cfg.Engine.Sync.MaxDelay,
			}, cfg.Engine.PageSize, cfg.Engine.MaxPages, logger.Log)
		commandHandler := engine.NewCommandHandler(connectionsRepo, commandsRepo, client,
			policy.Profile{
				MaxAttempts: cfg.Engine.Command.MaxAttempts,
				MinDelay:    cfg.Engine.Command.MinDelay,
				MaxDelay:    cfg.Engine.Command.MaxDelay,
			}, logger.Log)
		queue := engine.NewQueue(jobsRepo, cursorsRepo, locker, syncHandler, commandHandler,
			cfg.Engine.Workers, cfg.Engine.QueueSize, cfg.Engine.LockRefresh, logger.Log)

		processor := webhook.NewProcessor(webhooksRepo, cfg.Kafka.Topic, logger.Log)

		workerCtx, stopWorkers := context.WithCancel(context.Background())
		defer stopWorkers()
		queue.Start(workerCtx)

		server := httpSrv.NewServer(cfg, mysqlDB, chDB, redisClient, queue, commandHandler, processor)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Printf("signal received: %s, shutting down...", sig)
		case err := <-errCh:
			if err != nil {
				log.Printf("http server exited: %v", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		// stop accepting, let in-flight jobs drain
		stopWorkers()
		queue.Wait()

		return nil
	},
}

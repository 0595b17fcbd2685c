package worker

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/marketgate/mp-gateway/internal/config"
	"github.com/marketgate/mp-gateway/internal/db"
	"github.com/marketgate/mp-gateway/internal/engine"
	"github.com/marketgate/mp-gateway/internal/lock"
	"github.com/marketgate/mp-gateway/internal/logger"
	"github.com/marketgate/mp-gateway/internal/policy"
	"github.com/marketgate/mp-gateway/internal/remote"
	"github.com/marketgate/mp-gateway/internal/repository"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	cmd.AddCommand(eventsCmd)
	cmd.AddCommand(schedulerCmd)
	cmd.AddCommand(sweepCmd)
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}

func openMySQL(cfg config.Config) (*sqlx.DB, error) {
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.PoolOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}
	return dbx, nil
}

// buildQueue wires the full engine stack for workers that submit jobs.
func buildQueue(cfg config.Config, mysqlDB *sqlx.DB, rds *redis.Client) *engine.Queue {
	connectionsRepo := repository.NewConnectionsRepository(mysqlDB)
	jobsRepo := repository.NewJobsRepository(mysqlDB)
	cursorsRepo := repository.NewCursorsRepository(mysqlDB)
	entitiesRepo := repository.NewEntitiesRepository(mysqlDB)
	auditRepo := repository.NewAuditRepository(mysqlDB)
	commandsRepo := repository.NewCommandsRepository(mysqlDB, entitiesRepo, auditRepo)

	client := remote.NewHTTPClient(cfg.Remote.Timeout, cfg.Remote.APIKeyHeader, remote.BreakerOpts{
		FailThreshold: cfg.Remote.Breaker.FailThreshold,
		OpenFor:       cfg.Remote.Breaker.OpenFor,
	})
	locker := lock.NewRedisLocker(rds, cfg.Engine.LockTTL)

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

	return engine.NewQueue(jobsRepo, cursorsRepo, locker, syncHandler, commandHandler,
		cfg.Engine.Workers, cfg.Engine.QueueSize, cfg.Engine.LockRefresh, logger.Log)
}

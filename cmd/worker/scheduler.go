package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketgate/mp-gateway/internal/db"
	"github.com/marketgate/mp-gateway/internal/logger"
	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/repository"
	"github.com/marketgate/mp-gateway/internal/worker"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Periodically submit sync jobs for active connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		mysqlDB, err := openMySQL(cfg)
		if err != nil {
			return err
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

		var resources []model.ResourceType
		for _, s := range cfg.Scheduler.Resources {
			r, ok := model.ParseResourceType(s)
			if !ok {
				return fmt.Errorf("scheduler: unknown resource %q", s)
			}
			resources = append(resources, r)
		}

		queue := buildQueue(cfg, mysqlDB, redisClient)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue.Start(ctx)

		logger.Log.Info("scheduler started",
			zap.Duration("interval", cfg.Scheduler.Interval),
			zap.Strings("resources", cfg.Scheduler.Resources))

		s := worker.NewScheduler(repository.NewConnectionsRepository(mysqlDB), queue,
			cfg.Scheduler.Interval, resources, logger.Log)
		err = s.Run(ctx)
		queue.Wait()
		return err
	},
}

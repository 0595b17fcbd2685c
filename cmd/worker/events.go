package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketgate/mp-gateway/internal/db"
	"github.com/marketgate/mp-gateway/internal/kafka"
	"github.com/marketgate/mp-gateway/internal/logger"
	"github.com/marketgate/mp-gateway/internal/worker"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Consume webhook envelopes from Kafka and trigger syncs",
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

		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		queue := buildQueue(cfg, mysqlDB, redisClient)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue.Start(ctx)

		logger.Log.Info("events worker started",
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("group", cfg.Kafka.GroupID))

		w := worker.NewEventsWorker(consumer, queue, logger.Log)
		err = w.Run(ctx)
		queue.Wait()
		return err
	},
}

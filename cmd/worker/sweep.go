package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketgate/mp-gateway/internal/logger"
	"github.com/marketgate/mp-gateway/internal/repository"
	"github.com/marketgate/mp-gateway/internal/worker"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fail running jobs abandoned by a dead worker",
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("sweeper started",
			zap.Duration("interval", cfg.Sweep.Interval),
			zap.Duration("stale_after", cfg.Sweep.StaleAfter))

		s := worker.NewSweeper(repository.NewJobsRepository(mysqlDB),
			cfg.Sweep.Interval, cfg.Sweep.StaleAfter, logger.Log)
		return s.Run(ctx)
	},
}

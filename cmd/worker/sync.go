package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/app"
	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/jmehdipour/staffing-awards/internal/kafka"
	"github.com/jmehdipour/staffing-awards/internal/logger"
	"github.com/jmehdipour/staffing-awards/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSyncCmd(cfgFn func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the outboxes on a ticker and on Kafka triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgFn()
			log := logger.Log

			a, err := app.Open(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			runners := make([]worker.BatchRunner, 0, len(a.Runners))
			for _, r := range a.RunnerList() {
				runners = append(runners, r)
			}

			var triggers worker.TriggerSource
			if cfg.Kafka.Enabled() {
				groupID := cfg.Kafka.GroupID
				if groupID == "" {
					groupID = "wsa-sync"
				}
				reader := kafka.NewReader(kafka.Config{
					Brokers:        cfg.Kafka.Brokers,
					Topic:          cfg.Kafka.TriggerTopic,
					GroupID:        groupID,
					MinBytes:       cfg.Kafka.MinBytes,
					MaxBytes:       cfg.Kafka.MaxBytes,
					CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
				})
				defer func() { _ = reader.Close() }()
				triggers = reader
			}

			w := worker.NewSync(runners, triggers, cfg.Sync.Interval, log)

			// graceful shutdown
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("sync worker started",
				zap.Int("targets", len(runners)),
				zap.Duration("interval", w.Interval),
				zap.Bool("kafka", triggers != nil),
			)

			return w.Run(ctx)
		},
	}
}

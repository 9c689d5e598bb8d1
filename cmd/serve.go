package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/app"
	"github.com/jmehdipour/staffing-awards/internal/db"
	httpSrv "github.com/jmehdipour/staffing-awards/internal/http"
	"github.com/jmehdipour/staffing-awards/internal/kafka"
	"github.com/jmehdipour/staffing-awards/internal/logger"
	"github.com/jmehdipour/staffing-awards/internal/producer"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/service/awards"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Log

		a, err := app.Open(cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		redisClient, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		if redisClient != nil {
			defer func() { _ = redisClient.Close() }()
		}

		// sync triggers for the worker
		var notifier producer.Notifier
		if cfg.Kafka.Enabled() {
			kw := kafka.NewWriter(kafka.Config{
				Brokers:      cfg.Kafka.Brokers,
				Topic:        cfg.Kafka.TriggerTopic,
				WriteTimeout: cfg.Kafka.WriteTimeout,
				MaxAttempts:  cfg.Kafka.MaxAttempts,
			})
			defer func() { _ = kw.Close() }()
			notifier = kw
		}

		hook := producer.NewHook(a.OutboxList(), a.RunnerList(), notifier, log, producer.Options{
			Inline:        cfg.Sync.Inline,
			InlineTimeout: cfg.Sync.InlineTimeout,
			NotifyTimeout: cfg.Sync.NotifyTimeout,
		})

		awardsSvc := awards.New(
			a.MySQL,
			repository.NewNominationsRepository(a.MySQL),
			repository.NewVotesRepository(a.MySQL),
			repository.NewSubcategoriesRepository(a.MySQL),
			hook,
			cfg.Awards.SiteURL,
		)

		server := httpSrv.NewServer(httpSrv.Deps{
			Config:   cfg,
			Log:      log,
			Redis:    redisClient,
			Awards:   awardsSvc,
			Outboxes: a.Outboxes,
			Runners:  a.Runners,
			Attempts: a.Attempts,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				log.Error("http server exited", zap.Error(err))
			}
		}

		grace := cfg.HTTP.ShutdownGrace
		if grace <= 0 {
			grace = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}

// Package app opens the stores and builds the per-target sync pipeline shared
// by the serve, sync and worker commands.
package app

import (
	"fmt"

	"github.com/jmehdipour/staffing-awards/internal/adapter"
	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/jmehdipour/staffing-awards/internal/db"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/syncer"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type App struct {
	Config     config.Config
	Log        *zap.Logger
	MySQL      *sqlx.DB
	ClickHouse *sqlx.DB // nil without a DSN

	// Outboxes covers every target so rows accumulate for a disabled target
	// until it is switched on; Runners covers enabled targets only.
	Outboxes map[model.Target]repository.OutboxRepository
	Runners  map[model.Target]*syncer.Runner
	Attempts repository.AttemptsRepository
}

// Open connects MySQL (required) and ClickHouse (optional) and wires one
// outbox store per target plus a runner per enabled target.
func Open(cfg config.Config, log *zap.Logger) (*App, error) {
	mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}

	chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
		DSN:             cfg.ClickHouse.DSN,
		MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
		PingTimeout:     cfg.ClickHouse.PingTimeout,
	})
	if err != nil {
		_ = mysqlDB.Close()
		return nil, fmt.Errorf("clickhouse connect: %w", err)
	}

	a := &App{Config: cfg, Log: log, MySQL: mysqlDB, ClickHouse: chDB}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	var rec syncer.AttemptRecorder
	if a.ClickHouse != nil {
		a.Attempts = repository.NewCHAttemptsRepository(a.ClickHouse)
		rec = a.Attempts
	} else {
		a.Log.Info("clickhouse dsn empty, attempt history disabled")
	}

	a.Outboxes = make(map[model.Target]repository.OutboxRepository, len(model.Targets))
	a.Runners = make(map[model.Target]*syncer.Runner, len(model.Targets))
	for _, target := range model.Targets {
		store, err := repository.NewOutboxRepository(a.MySQL, target, a.Config.Sync.MaxAttempts)
		if err != nil {
			return err
		}
		a.Outboxes[target] = store

		ic := Integration(a.Config, target)
		if !ic.Enabled {
			a.Log.Info("sync target disabled", zap.String("target", target.String()))
			continue
		}
		ad, err := adapter.New(target, ic, a.Config.Awards.Year)
		if err != nil {
			return err
		}
		a.Runners[target] = syncer.NewRunner(store, ad, rec, a.Log, syncer.Options{
			BatchSize:       a.Config.Sync.BatchSize,
			StaleAfter:      a.Config.Sync.StaleAfter,
			DeadOnPermanent: a.Config.Sync.DeadOnPermanent,
			Year:            a.Config.Awards.Year,
		})
	}
	return nil
}

// Integration returns the settings block of target.
func Integration(cfg config.Config, target model.Target) config.IntegrationConfig {
	switch target {
	case model.TargetHubSpot:
		return cfg.HubSpot
	case model.TargetLoops:
		return cfg.Loops
	default:
		return config.IntegrationConfig{}
	}
}

// OutboxList returns every outbox in model.Targets order.
func (a *App) OutboxList() []repository.OutboxRepository {
	out := make([]repository.OutboxRepository, 0, len(a.Outboxes))
	for _, t := range model.Targets {
		if ob, ok := a.Outboxes[t]; ok {
			out = append(out, ob)
		}
	}
	return out
}

// RunnerList returns the enabled runners in model.Targets order.
func (a *App) RunnerList() []*syncer.Runner {
	out := make([]*syncer.Runner, 0, len(a.Runners))
	for _, t := range model.Targets {
		if r, ok := a.Runners[t]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Runner resolves a CLI target name to its enabled runner.
func (a *App) Runner(name string) (*syncer.Runner, error) {
	target, ok := model.ParseTarget(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", adapter.ErrUnknownTarget, name)
	}
	r, ok := a.Runners[target]
	if !ok {
		return nil, fmt.Errorf("target %s is disabled", target)
	}
	return r, nil
}

// Outbox resolves a CLI target name to its store, enabled or not.
func (a *App) Outbox(name string) (repository.OutboxRepository, error) {
	target, ok := model.ParseTarget(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", adapter.ErrUnknownTarget, name)
	}
	return a.Outboxes[target], nil
}

func (a *App) Close() {
	if a.ClickHouse != nil {
		_ = a.ClickHouse.Close()
	}
	if a.MySQL != nil {
		_ = a.MySQL.Close()
	}
}

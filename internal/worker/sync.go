package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/kafka"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/syncer"
	"go.uber.org/zap"
)

// BatchRunner drains one target's outbox; *syncer.Runner in production.
type BatchRunner interface {
	Target() model.Target
	ProcessBatch(ctx context.Context) (syncer.Summary, error)
}

// TriggerSource yields "outbox has work" messages; *kafka.Reader in production.
type TriggerSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Sync runs every enabled target on a ticker and, when Triggers is set, on
// demand for each trigger message:
// - one ticker goroutine per target,
// - one consumer goroutine for the trigger topic,
// - a per-target mutex so the ticker and a trigger never overlap in-process.
type Sync struct {
	Runners  []BatchRunner
	Triggers TriggerSource
	Interval time.Duration
	Log      *zap.Logger

	locks map[model.Target]*sync.Mutex
	byTgt map[model.Target]BatchRunner
}

func NewSync(runners []BatchRunner, triggers TriggerSource, interval time.Duration, log *zap.Logger) *Sync {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Sync{
		Runners:  runners,
		Triggers: triggers,
		Interval: interval,
		Log:      log,
		locks:    make(map[model.Target]*sync.Mutex, len(runners)),
		byTgt:    make(map[model.Target]BatchRunner, len(runners)),
	}
	for _, r := range runners {
		w.locks[r.Target()] = &sync.Mutex{}
		w.byTgt[r.Target()] = r
	}
	return w
}

// Run blocks until ctx is cancelled and every loop has returned.
func (w *Sync) Run(ctx context.Context) error {
	if len(w.Runners) == 0 {
		return errors.New("sync worker: no targets enabled")
	}

	var wg sync.WaitGroup
	for _, r := range w.Runners {
		wg.Add(1)
		go func(target model.Target) {
			defer wg.Done()
			w.tickLoop(ctx, target)
		}(r.Target())
	}
	if w.Triggers != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.triggerLoop(ctx)
		}()
	}

	wg.Wait()
	return nil
}

// RunOnce processes one batch for target under the target's lock.
func (w *Sync) RunOnce(ctx context.Context, target model.Target) (syncer.Summary, error) {
	r, ok := w.byTgt[target]
	if !ok {
		return syncer.Summary{}, nil
	}
	mu := w.locks[target]
	mu.Lock()
	defer mu.Unlock()

	return r.ProcessBatch(ctx)
}

func (w *Sync) tickLoop(ctx context.Context, target model.Target) {
	log := w.Log.With(zap.String("target", target.String()))
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	// first batch right away so a restart drains leftovers
	w.runLogged(ctx, target, log)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.runLogged(ctx, target, log)
		}
	}
}

func (w *Sync) triggerLoop(ctx context.Context) {
	for {
		m, err := w.Triggers.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.Warn("kafka fetch err", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		tr, err := kafka.DecodeTrigger(m)
		if err != nil {
			// poison message: commit and move on, the ticker still covers the target
			w.Log.Warn("dropping sync trigger", zap.Error(err))
		} else if _, ok := w.byTgt[tr.Target]; ok {
			w.runLogged(ctx, tr.Target, w.Log.With(zap.String("target", tr.Target.String()), zap.String("trigger", tr.EventID)))
		}

		if err := w.Triggers.Commit(ctx, m); err != nil && ctx.Err() == nil {
			w.Log.Warn("kafka commit err", zap.Error(err))
		}
	}
}

func (w *Sync) runLogged(ctx context.Context, target model.Target, log *zap.Logger) {
	sum, err := w.RunOnce(ctx, target)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("sync batch failed", zap.Error(err))
		}
		return
	}
	if sum.Total > 0 {
		log.Debug("sync batch", zap.Int("processed", sum.Processed), zap.Int("errors", sum.Errors), zap.Int("total", sum.Total))
	}
}

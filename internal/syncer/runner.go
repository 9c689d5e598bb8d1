package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/adapter"
	"github.com/jmehdipour/staffing-awards/internal/metrics"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"go.uber.org/zap"
)

// AttemptRecorder receives one row per delivery attempt, flushed per batch.
type AttemptRecorder interface {
	InsertBatch(ctx context.Context, rows []model.SyncAttempt) error
}

type Options struct {
	BatchSize       int
	StaleAfter      time.Duration
	DeadOnPermanent bool
	Year            string
}

// Summary reports one ProcessBatch run. Processed counts rows marked done,
// Errors counts rows that failed (Dead is the subset parked as dead). Lost
// counts claimed rows requeued by a stale sweep before their turn.
type Summary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
	Dead      int `json:"dead"`
	Requeued  int `json:"requeued"`
	Lost      int `json:"lost"`
	Total     int `json:"total"`

	// CircuitOpen is set when nothing was claimed because the adapter's
	// breaker would refuse every call.
	CircuitOpen bool `json:"circuit_open,omitempty"`
}

// Result describes a single-row run.
type Result struct {
	Claimed bool
	Outcome string // model.Attempt*
	Status  model.OutboxStatus
	Err     error
}

// Runner drains one target's outbox through its adapter.
type Runner struct {
	store    repository.OutboxRepository
	adapter  adapter.Adapter
	recorder AttemptRecorder
	log      *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewRunner(store repository.OutboxRepository, ad adapter.Adapter, rec AttemptRecorder, log *zap.Logger, opts Options) *Runner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		store:    store,
		adapter:  ad,
		recorder: rec,
		log:      log.With(zap.String("target", store.Target().String())),
		opts:     opts,
		now:      time.Now,
	}
}

func (r *Runner) Target() model.Target               { return r.store.Target() }
func (r *Runner) Health() string                     { return r.adapter.Health() }
func (r *Runner) Store() repository.OutboxRepository { return r.store }

// ProcessBatch requeues stale rows, claims a batch and pushes each row in
// order. A failing row never aborts the batch; the returned error is only
// set when the outbox itself cannot be read.
func (r *Runner) ProcessBatch(ctx context.Context) (Summary, error) {
	var sum Summary

	if r.opts.StaleAfter > 0 {
		n, err := r.store.RequeueStale(ctx, r.opts.StaleAfter)
		if err != nil {
			r.log.Warn("requeue stale failed", zap.Error(err))
		} else if n > 0 {
			sum.Requeued = int(n)
			metrics.OutboxEventsTotal.WithLabelValues(r.Target().String(), "requeued").Add(float64(n))
			r.log.Info("requeued stale processing rows", zap.Int64("count", n))
		}
	}

	if !r.adapter.Ready() {
		sum.CircuitOpen = true
		r.log.Debug("circuit open, batch left pending")
		return sum, nil
	}

	events, err := r.store.ClaimBatch(ctx, r.opts.BatchSize)
	if err != nil {
		return sum, fmt.Errorf("claim batch: %w", err)
	}
	sum.Total = len(events)

	attempts := make([]model.SyncAttempt, 0, len(events))
	for i, ev := range events {
		if i > 0 && !r.renew(ctx, ev) {
			sum.Lost++
			continue
		}
		res, attempt := r.process(ctx, ev)
		attempts = append(attempts, attempt)

		switch {
		case res.Err == nil:
			sum.Processed++
		case res.Status == model.OutboxDead:
			sum.Errors++
			sum.Dead++
		default:
			sum.Errors++
		}
	}
	r.flush(ctx, attempts)

	if sum.Total > 0 {
		r.log.Info("batch processed",
			zap.Int("processed", sum.Processed),
			zap.Int("errors", sum.Errors),
			zap.Int("dead", sum.Dead),
			zap.Int("total", sum.Total),
		)
	}
	return sum, nil
}

// ProcessByID claims and pushes one row. Claimed is false when the row is
// no longer pending (another runner got it first, or it already finished)
// or the circuit is open.
func (r *Runner) ProcessByID(ctx context.Context, id string) (Result, error) {
	if !r.adapter.Ready() {
		return Result{}, nil
	}
	ev, err := r.store.ClaimByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if ev == nil {
		return Result{}, nil
	}

	res, attempt := r.process(ctx, *ev)
	r.flush(ctx, []model.SyncAttempt{attempt})
	return res, nil
}

// renew refreshes the claim of a row that waited behind earlier rows of the
// batch. It reports false when the claim is gone.
func (r *Runner) renew(ctx context.Context, ev model.OutboxEvent) bool {
	err := r.store.Touch(ctx, ev.ID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, repository.ErrNotClaimed):
		r.log.Warn("claim lost before push, skipping", zap.String("id", ev.ID))
		return false
	default:
		r.log.Warn("touch failed", zap.String("id", ev.ID), zap.Error(err))
		return true
	}
}

func (r *Runner) process(ctx context.Context, ev model.OutboxEvent) (res Result, attempt model.SyncAttempt) {
	start := r.now()
	log := r.log.With(
		zap.String("id", ev.ID),
		zap.String("event_type", ev.EventType.String()),
		zap.Int("attempt", ev.AttemptCount),
	)

	res = Result{Claimed: true}
	res.Err = r.push(ctx, ev, log)

	// bookkeeping must land even when the caller is shutting down
	bctx := context.WithoutCancel(ctx)

	switch {
	case res.Err == nil || errors.Is(res.Err, adapter.ErrSkipped):
		res.Outcome = model.AttemptOK
		if res.Err != nil {
			res.Outcome = model.AttemptSkipped
			res.Err = nil
		}
		res.Status = model.OutboxDone
		if err := r.store.MarkDone(bctx, ev.ID); err != nil {
			log.Error("mark done failed", zap.Error(err))
			res.Err = err
			res.Status = model.OutboxProcessing
		} else {
			metrics.OutboxEventsTotal.WithLabelValues(r.Target().String(), "done").Inc()
		}

	default:
		permanent := r.opts.DeadOnPermanent && isPermanent(res.Err)
		st, err := r.store.MarkFailed(bctx, ev.ID, res.Err.Error(), permanent)
		if err != nil {
			log.Error("mark failed failed", zap.Error(err), zap.NamedError("sync_error", res.Err))
			st = model.OutboxProcessing
		}
		res.Status = st
		res.Outcome = model.AttemptRetry
		if st == model.OutboxDead {
			res.Outcome = model.AttemptDead
			metrics.OutboxEventsTotal.WithLabelValues(r.Target().String(), "dead").Inc()
			log.Warn("event parked as dead", zap.Error(res.Err), zap.Bool("permanent", permanent))
		} else {
			metrics.OutboxEventsTotal.WithLabelValues(r.Target().String(), "retry").Inc()
			log.Info("event failed, will retry", zap.Error(res.Err))
		}
	}

	attempt = model.SyncAttempt{
		EventID:    ev.ID,
		Target:     r.Target().String(),
		EventType:  ev.EventType.String(),
		Attempt:    uint16(ev.AttemptCount),
		Outcome:    res.Outcome,
		Status:     res.Status.String(),
		DurationMs: uint32(r.now().Sub(start).Milliseconds()),
		At:         start.UTC(),
	}
	if res.Err != nil {
		attempt.Error = res.Err.Error()
	}
	return res, attempt
}

// push decodes the payload and performs the external calls for it.
func (r *Runner) push(ctx context.Context, ev model.OutboxEvent, log *zap.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("panic while pushing event", zap.Any("panic", p))
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	payload, err := ev.Decode()
	if err != nil {
		return err
	}
	return r.dispatch(ctx, payload)
}

func (r *Runner) dispatch(ctx context.Context, p model.Payload) error {
	year := r.opts.Year

	switch v := p.(type) {
	case model.NominationSubmitted:
		return r.adapter.UpsertContact(ctx, nominatorContact(v, year))

	case model.NominationApproved:
		var err error
		if v.Type == model.NomineeCompany {
			err = r.adapter.UpsertCompany(ctx, nomineeCompany(v, year))
		} else {
			err = r.adapter.UpsertContact(ctx, nomineeContact(v, year))
		}
		if err != nil && !errors.Is(err, adapter.ErrSkipped) {
			return fmt.Errorf("nominee upsert: %w", err)
		}

		// chained only after the nominee is in place
		if lu, ok := v.LiveUpdate(); ok {
			if err := r.adapter.UpsertContact(ctx, liveUpdateContact(lu, year)); err != nil {
				return fmt.Errorf("nominator live update: %w", err)
			}
		}
		return nil

	case model.VoteCast:
		return r.adapter.UpsertContact(ctx, voterContact(v, year))

	case model.NominatorLiveUpdate:
		return r.adapter.UpsertContact(ctx, liveUpdateContact(v, year))

	default:
		return fmt.Errorf("%w: %T", model.ErrUnknownEventType, p)
	}
}

func (r *Runner) flush(ctx context.Context, attempts []model.SyncAttempt) {
	if r.recorder == nil || len(attempts) == 0 {
		return
	}
	if err := r.recorder.InsertBatch(context.WithoutCancel(ctx), attempts); err != nil {
		r.log.Warn("record attempts failed", zap.Error(err), zap.Int("count", len(attempts)))
	}
}

// isPermanent covers rejected requests and rows whose payload can never decode.
func isPermanent(err error) bool {
	return adapter.IsPermanent(err) ||
		errors.Is(err, model.ErrInvalidPayload) ||
		errors.Is(err, model.ErrUnknownEventType)
}

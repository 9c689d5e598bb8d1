// Package producer turns committed primary writes into outbox rows and then
// tries to deliver them right away. Delivery here is best effort: the rows
// written by Enqueue are what guarantee the sync.
package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/metrics"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/syncer"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Enqueued identifies one written outbox row.
type Enqueued struct {
	Target model.Target
	ID     string
}

// Notifier nudges the sync worker after rows commit (Kafka in production).
type Notifier interface {
	Notify(ctx context.Context, target model.Target, eventID string) error
}

type Options struct {
	Inline        bool
	InlineTimeout time.Duration
	// NotifyTimeout bounds all trigger publishes of one Push.
	NotifyTimeout time.Duration
}

// Hook writes one row per outbox for every event and pushes it inline
// through the target's runner when one is configured.
type Hook struct {
	outboxes []repository.OutboxRepository
	runners  map[model.Target]*syncer.Runner
	notifier Notifier
	log      *zap.Logger
	opts     Options
}

func NewHook(outboxes []repository.OutboxRepository, runners []*syncer.Runner, notifier Notifier, log *zap.Logger, opts Options) *Hook {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.InlineTimeout <= 0 {
		opts.InlineTimeout = 8 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = time.Second
	}
	byTarget := make(map[model.Target]*syncer.Runner, len(runners))
	for _, r := range runners {
		byTarget[r.Target()] = r
	}
	return &Hook{outboxes: outboxes, runners: byTarget, notifier: notifier, log: log, opts: opts}
}

// Enqueue writes p to every outbox inside tx. With a nil tx each outbox
// write commits on its own.
func (h *Hook) Enqueue(ctx context.Context, tx *sqlx.Tx, p model.Payload) ([]Enqueued, error) {
	out := make([]Enqueued, 0, len(h.outboxes))
	for _, ob := range h.outboxes {
		id, err := ob.Enqueue(ctx, tx, p)
		if err != nil {
			return nil, fmt.Errorf("enqueue %s to %s: %w", p.EventType(), ob.Target(), err)
		}
		out = append(out, Enqueued{Target: ob.Target(), ID: id})
	}
	for _, e := range out {
		metrics.OutboxEventsTotal.WithLabelValues(e.Target.String(), "enqueued").Inc()
	}
	return out, nil
}

// Push must run after the enqueue committed. It never returns an error:
// every failure is logged and left to the outbox.
func (h *Hook) Push(ctx context.Context, rows []Enqueued) {
	h.notifyAll(ctx, rows)
	if !h.opts.Inline {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.InlineTimeout)
	defer cancel()

	for _, e := range rows {
		r, ok := h.runners[e.Target]
		if !ok {
			continue
		}
		log := h.log.With(zap.String("target", e.Target.String()), zap.String("id", e.ID))

		res, err := r.ProcessByID(ctx, e.ID)
		outcome := res.Outcome
		switch {
		case err != nil:
			outcome = "error"
			log.Warn("inline sync failed, left to the outbox", zap.Error(err))
		case !res.Claimed:
			outcome = "not_claimed"
		case res.Err != nil:
			log.Warn("inline sync failed, left to the outbox", zap.Error(res.Err), zap.String("status", res.Status.String()))
		default:
			log.Debug("inline sync done")
		}
		metrics.InlineSyncTotal.WithLabelValues(e.Target.String(), outcome).Inc()
	}
}

func (h *Hook) notifyAll(ctx context.Context, rows []Enqueued) {
	if h.notifier == nil || len(rows) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.NotifyTimeout)
	defer cancel()

	for _, e := range rows {
		if err := h.notifier.Notify(ctx, e.Target, e.ID); err != nil {
			h.log.Warn("sync trigger publish failed", zap.String("target", e.Target.String()), zap.Error(err))
		}
	}
}

// OnNominationSubmitted enqueues the nominator upsert and pushes it. The
// nominee stays out of the payload until the nomination is approved.
func (h *Hook) OnNominationSubmitted(ctx context.Context, n model.Nomination, nominator model.Nominator, _ model.Nominee) error {
	return h.enqueueAndPush(ctx, NominationSubmitted(n, nominator))
}

// OnNominationApproved enqueues the nominee upsert (with the chained
// nominator live update) and pushes it.
func (h *Hook) OnNominationApproved(ctx context.Context, n model.Nomination, nominee model.Nominee, nominator *model.Nominator, liveURL string) error {
	return h.enqueueAndPush(ctx, NominationApproved(n, nominee, nominator, liveURL))
}

// OnVoteCast enqueues the voter upsert and pushes it.
func (h *Hook) OnVoteCast(ctx context.Context, v model.Vote, voter model.Voter, nominee model.Nominee) error {
	return h.enqueueAndPush(ctx, VoteCast(v, voter, nominee))
}

func (h *Hook) enqueueAndPush(ctx context.Context, p model.Payload) error {
	rows, err := h.Enqueue(ctx, nil, p)
	if err != nil {
		return err
	}
	h.Push(ctx, rows)
	return nil
}

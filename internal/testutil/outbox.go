// Package testutil holds in-memory doubles for the outbox and the external
// adapters. They follow the same state machine as the MySQL repository.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/util"
	"github.com/jmoiron/sqlx"
)

// MemoryOutbox is a concurrency-safe OutboxRepository. A single mutex stands
// in for the row locks of SELECT ... FOR UPDATE SKIP LOCKED.
type MemoryOutbox struct {
	mu          sync.Mutex
	target      model.Target
	maxAttempts int
	rows        map[string]*model.OutboxEvent
	seq         int
	Now         func() time.Time

	// EnqueueErr, when set, fails every Enqueue.
	EnqueueErr error
}

var _ repository.OutboxRepository = (*MemoryOutbox)(nil)

func NewMemoryOutbox(target model.Target, maxAttempts int) *MemoryOutbox {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &MemoryOutbox{
		target:      target,
		maxAttempts: maxAttempts,
		rows:        map[string]*model.OutboxEvent{},
		Now:         time.Now,
	}
}

func (m *MemoryOutbox) Target() model.Target { return m.target }

func (m *MemoryOutbox) Enqueue(_ context.Context, _ *sqlx.Tx, p model.Payload) (string, error) {
	eventType, raw, err := model.EncodePayload(p)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return "", m.EnqueueErr
	}

	// created_at ties are broken by insertion order, like (created_at, id)
	m.seq++
	now := m.Now().Add(time.Duration(m.seq) * time.Microsecond)
	id := util.NewID()
	m.rows[id] = &model.OutboxEvent{
		ID:        id,
		EventType: eventType,
		Payload:   raw,
		Status:    model.OutboxPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (m *MemoryOutbox) ClaimBatch(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]*model.OutboxEvent, 0, len(m.rows))
	for _, r := range m.rows {
		if r.Status == model.OutboxPending {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]model.OutboxEvent, 0, len(pending))
	for _, r := range pending {
		m.claim(r)
		out = append(out, *r)
	}
	return out, nil
}

func (m *MemoryOutbox) ClaimByID(_ context.Context, id string) (*model.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok || r.Status != model.OutboxPending {
		return nil, nil
	}
	m.claim(r)
	ev := *r
	return &ev, nil
}

func (m *MemoryOutbox) claim(r *model.OutboxEvent) {
	r.Status = model.OutboxProcessing
	r.AttemptCount++
	r.UpdatedAt = m.Now()
}

func (m *MemoryOutbox) Touch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok || r.Status != model.OutboxProcessing {
		return repository.ErrNotClaimed
	}
	r.UpdatedAt = m.Now()
	return nil
}

func (m *MemoryOutbox) MarkDone(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok || r.Status != model.OutboxProcessing {
		return repository.ErrNotClaimed
	}
	r.Status = model.OutboxDone
	r.LastError = ""
	r.UpdatedAt = m.Now()
	return nil
}

func (m *MemoryOutbox) MarkFailed(_ context.Context, id, errMsg string, permanent bool) (model.OutboxStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok || r.Status != model.OutboxProcessing {
		return "", repository.ErrNotClaimed
	}
	if permanent || r.AttemptCount >= m.maxAttempts {
		r.Status = model.OutboxDead
	} else {
		r.Status = model.OutboxPending
	}
	r.LastError = errMsg
	r.UpdatedAt = m.Now()
	return r.Status, nil
}

func (m *MemoryOutbox) RequeueStale(_ context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.Now().Add(-olderThan)
	var n int64
	for _, r := range m.rows {
		if r.Status != model.OutboxProcessing || !r.UpdatedAt.Before(cutoff) {
			continue
		}
		if r.AttemptCount >= m.maxAttempts {
			r.Status = model.OutboxDead
		} else {
			r.Status = model.OutboxPending
		}
		r.LastError = "processing timed out"
		r.UpdatedAt = m.Now()
		n++
	}
	return n, nil
}

func (m *MemoryOutbox) Replay(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok {
		return repository.ErrOutboxNotFound
	}
	if r.Status != model.OutboxDead {
		return repository.ErrNotDead
	}
	r.Status = model.OutboxPending
	r.UpdatedAt = m.Now()
	return nil
}

func (m *MemoryOutbox) Get(_ context.Context, id string) (*model.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrOutboxNotFound
	}
	ev := *r
	return &ev, nil
}

func (m *MemoryOutbox) CountByStatus(_ context.Context) (map[model.OutboxStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[model.OutboxStatus]int64, len(model.OutboxStatuses))
	for _, s := range model.OutboxStatuses {
		out[s] = 0
	}
	for _, r := range m.rows {
		out[r.Status]++
	}
	return out, nil
}

// All returns a snapshot of every row ordered by creation.
func (m *MemoryOutbox) All() []model.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.OutboxEvent, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Backdate moves a row's updated_at into the past, simulating a crashed claim.
func (m *MemoryOutbox) Backdate(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		r.UpdatedAt = r.UpdatedAt.Add(-d)
	}
}

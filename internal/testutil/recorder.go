package testutil

import (
	"context"
	"sync"

	"github.com/jmehdipour/staffing-awards/internal/model"
)

// MemoryRecorder collects sync attempts.
type MemoryRecorder struct {
	mu   sync.Mutex
	rows []model.SyncAttempt
	Err  error
}

func (m *MemoryRecorder) InsertBatch(_ context.Context, rows []model.SyncAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *MemoryRecorder) Rows() []model.SyncAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SyncAttempt(nil), m.rows...)
}

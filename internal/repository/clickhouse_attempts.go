package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmoiron/sqlx"
)

// AttemptsRepository writes and lists delivery attempts in ClickHouse.
type AttemptsRepository interface {
	InsertBatch(ctx context.Context, rows []model.SyncAttempt) error
	ListByTarget(ctx context.Context, target model.Target, outcome, eventID string, limit, offset int) ([]model.SyncAttempt, error)
}

type chAttemptsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHAttemptsRepository(ch *sqlx.DB) AttemptsRepository {
	return &chAttemptsRepository{ch: ch}
}

// InsertBatch sends rows as one ClickHouse block (begin, prepare, exec, commit).
func (r *chAttemptsRepository) InsertBatch(ctx context.Context, rows []model.SyncAttempt) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO wsa.sync_attempts
			(event_id, target, event_type, attempt, outcome, status, error, duration_ms, at)
	`)
	if err != nil {
		return fmt.Errorf("prepare attempts batch: %w", err)
	}
	defer stmt.Close()

	for _, a := range rows {
		if _, err := stmt.ExecContext(ctx,
			a.EventID, a.Target, a.EventType, a.Attempt, a.Outcome, a.Status, a.Error, a.DurationMs, a.At.UTC(),
		); err != nil {
			return fmt.Errorf("append attempt %s: %w", a.EventID, err)
		}
	}
	return tx.Commit()
}

func (r *chAttemptsRepository) ListByTarget(ctx context.Context, target model.Target, outcome, eventID string, limit, offset int) ([]model.SyncAttempt, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT event_id, target, event_type, attempt, outcome, status, error, duration_ms, at
		FROM wsa.sync_attempts
		WHERE target = ?
	`
	args := []any{target.String()}

	if outcome != "" {
		q += " AND outcome = ?"
		args = append(args, outcome)
	}
	if eventID != "" {
		q += " AND event_id = ?"
		args = append(args, eventID)
	}

	q += " ORDER BY at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.SyncAttempt
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

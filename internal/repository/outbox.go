package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/util"
	"github.com/jmoiron/sqlx"
)

var (
	ErrOutboxNotFound = errors.New("outbox event not found")
	// ErrNotClaimed means the row left `processing` before the caller finished,
	// e.g. it was requeued as stale.
	ErrNotClaimed = errors.New("outbox event is not processing")
	ErrNotDead    = errors.New("outbox event is not dead")
)

const maxErrorLen = 2000

const outboxColumns = `id, event_type, payload, status, attempt_count, last_error, created_at, updated_at`

// OutboxRepository persists one target's outbox table.
type OutboxRepository interface {
	Target() model.Target

	// Enqueue validates p and inserts a pending row. If tx is nil, it will
	// open/commit an internal transaction; otherwise it uses the given tx.
	Enqueue(ctx context.Context, tx *sqlx.Tx, p model.Payload) (string, error)

	// ClaimBatch moves up to limit pending rows, oldest first, to processing
	// and increments their attempt_count. Rows locked by a concurrent claim
	// are skipped, never returned twice.
	ClaimBatch(ctx context.Context, limit int) ([]model.OutboxEvent, error)

	// ClaimByID claims one specific row; (nil, nil) if it is not pending.
	ClaimByID(ctx context.Context, id string) (*model.OutboxEvent, error)

	// Touch renews a claimed row's updated_at before it is pushed, so rows
	// late in a slow batch are not taken for stale. ErrNotClaimed means the
	// row was requeued meanwhile and must not be pushed.
	Touch(ctx context.Context, id string) error

	MarkDone(ctx context.Context, id string) error

	// MarkFailed records errMsg and returns the row to pending, or parks it
	// as dead once attempt_count reaches the ceiling or permanent is set.
	MarkFailed(ctx context.Context, id, errMsg string, permanent bool) (model.OutboxStatus, error)

	// RequeueStale releases rows stuck in processing for longer than olderThan.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// Replay returns a dead row to pending for one more attempt.
	Replay(ctx context.Context, id string) error

	Get(ctx context.Context, id string) (*model.OutboxEvent, error)
	CountByStatus(ctx context.Context) (map[model.OutboxStatus]int64, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation for MySQL 8.
type OutboxRepositoryImpl struct {
	db          *sqlx.DB
	target      model.Target
	table       string
	maxAttempts int
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

// NewOutboxRepository constructs the repository for target's table.
func NewOutboxRepository(db *sqlx.DB, target model.Target, maxAttempts int) (*OutboxRepositoryImpl, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("outbox: unknown target %q", target)
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &OutboxRepositoryImpl{db: db, target: target, table: target.OutboxTable(), maxAttempts: maxAttempts}, nil
}

func (r *OutboxRepositoryImpl) Target() model.Target { return r.target }

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *OutboxRepositoryImpl) Enqueue(ctx context.Context, tx *sqlx.Tx, p model.Payload) (string, error) {
	eventType, payload, err := model.EncodePayload(p)
	if err != nil {
		return "", err
	}

	id := util.NewID()
	q := fmt.Sprintf(`
		INSERT INTO %s (id, event_type, payload, status, attempt_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, '', NOW(6), NOW(6))
	`, r.table)

	err = r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id, eventType.String(), payload)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", r.table, err)
	}
	return id, nil
}

func (r *OutboxRepositoryImpl) ClaimBatch(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var out []model.OutboxEvent
	err := r.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		var ids []string
		sel := fmt.Sprintf(`
			SELECT id FROM %s
			 WHERE status = 'pending'
			 ORDER BY created_at, id
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED
		`, r.table)
		if err := tx.SelectContext(ctx, &ids, sel, limit); err != nil {
			return fmt.Errorf("select pending: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		upd, args, err := sqlx.In(fmt.Sprintf(`
			UPDATE %s
			   SET status = 'processing', attempt_count = attempt_count + 1, updated_at = NOW(6)
			 WHERE id IN (?)
		`, r.table), ids)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.db.Rebind(upd), args...); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}

		get, args, err := sqlx.In(fmt.Sprintf(`
			SELECT %s FROM %s WHERE id IN (?) ORDER BY created_at, id
		`, outboxColumns, r.table), ids)
		if err != nil {
			return err
		}
		if err := tx.SelectContext(ctx, &out, r.db.Rebind(get), args...); err != nil {
			return fmt.Errorf("load claimed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", r.table, err)
	}
	return out, nil
}

func (r *OutboxRepositoryImpl) ClaimByID(ctx context.Context, id string) (*model.OutboxEvent, error) {
	var out *model.OutboxEvent
	err := r.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		var locked string
		sel := fmt.Sprintf(`SELECT id FROM %s WHERE id = ? AND status = 'pending' FOR UPDATE SKIP LOCKED`, r.table)
		if err := tx.GetContext(ctx, &locked, sel, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("select pending: %w", err)
		}

		upd := fmt.Sprintf(`
			UPDATE %s
			   SET status = 'processing', attempt_count = attempt_count + 1, updated_at = NOW(6)
			 WHERE id = ?
		`, r.table)
		if _, err := tx.ExecContext(ctx, upd, id); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}

		var ev model.OutboxEvent
		if err := tx.GetContext(ctx, &ev, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, outboxColumns, r.table), id); err != nil {
			return fmt.Errorf("load claimed: %w", err)
		}
		out = &ev
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s/%s: %w", r.table, id, err)
	}
	return out, nil
}

func (r *OutboxRepositoryImpl) Touch(ctx context.Context, id string) error {
	q := fmt.Sprintf(`
		UPDATE %s
		   SET updated_at = NOW(6)
		 WHERE id = ? AND status = 'processing'
	`, r.table)
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("touch %s/%s: %w", r.table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (r *OutboxRepositoryImpl) MarkDone(ctx context.Context, id string) error {
	q := fmt.Sprintf(`
		UPDATE %s
		   SET status = 'done', last_error = '', updated_at = NOW(6)
		 WHERE id = ? AND status = 'processing'
	`, r.table)
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark done %s/%s: %w", r.table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id, errMsg string, permanent bool) (model.OutboxStatus, error) {
	errMsg = util.TruncateUTF8(errMsg, maxErrorLen)

	var st model.OutboxStatus
	err := r.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		upd := fmt.Sprintf(`
			UPDATE %s
			   SET status = CASE WHEN ? OR attempt_count >= ? THEN 'dead' ELSE 'pending' END,
			       last_error = ?,
			       updated_at = NOW(6)
			 WHERE id = ? AND status = 'processing'
		`, r.table)
		res, err := tx.ExecContext(ctx, upd, permanent, r.maxAttempts, errMsg, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotClaimed
		}
		return tx.GetContext(ctx, &st, fmt.Sprintf(`SELECT status FROM %s WHERE id = ?`, r.table), id)
	})
	if err != nil {
		if errors.Is(err, ErrNotClaimed) {
			return "", err
		}
		return "", fmt.Errorf("mark failed %s/%s: %w", r.table, id, err)
	}
	return st, nil
}

func (r *OutboxRepositoryImpl) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	// the cutoff is taken from the server clock that wrote updated_at;
	// a crashed attempt still counts toward the ceiling
	q := fmt.Sprintf(`
		UPDATE %s
		   SET status = CASE WHEN attempt_count >= ? THEN 'dead' ELSE 'pending' END,
		       last_error = 'processing timed out',
		       updated_at = NOW(6)
		 WHERE status = 'processing' AND updated_at < NOW(6) - INTERVAL ? MICROSECOND
	`, r.table)
	res, err := r.db.ExecContext(ctx, q, r.maxAttempts, olderThan.Microseconds())
	if err != nil {
		return 0, fmt.Errorf("requeue stale %s: %w", r.table, err)
	}
	return res.RowsAffected()
}

func (r *OutboxRepositoryImpl) Replay(ctx context.Context, id string) error {
	q := fmt.Sprintf(`
		UPDATE %s
		   SET status = 'pending', updated_at = NOW(6)
		 WHERE id = ? AND status = 'dead'
	`, r.table)
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("replay %s/%s: %w", r.table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotDead
	}
	return nil
}

func (r *OutboxRepositoryImpl) Get(ctx context.Context, id string) (*model.OutboxEvent, error) {
	var ev model.OutboxEvent
	err := r.db.GetContext(ctx, &ev, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, outboxColumns, r.table), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOutboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *OutboxRepositoryImpl) CountByStatus(ctx context.Context) (map[model.OutboxStatus]int64, error) {
	var rows []struct {
		Status model.OutboxStatus `db:"status"`
		N      int64              `db:"n"`
	}
	q := fmt.Sprintf(`SELECT status, COUNT(*) AS n FROM %s GROUP BY status`, r.table)
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("count %s: %w", r.table, err)
	}

	out := make(map[model.OutboxStatus]int64, len(model.OutboxStatuses))
	for _, s := range model.OutboxStatuses {
		out[s] = 0
	}
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

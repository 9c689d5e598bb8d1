package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOutboxRepo(t *testing.T, target model.Target) (*OutboxRepositoryImpl, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	repo, err := NewOutboxRepository(sqlx.NewDb(raw, "mysql"), target, 3)
	require.NoError(t, err)
	return repo, mock
}

var outboxCols = []string{"id", "event_type", "payload", "status", "attempt_count", "last_error", "created_at", "updated_at"}

func TestNewOutboxRepository_RejectsUnknownTarget(t *testing.T) {
	_, err := NewOutboxRepository(nil, model.Target("salesforce"), 3)
	assert.Error(t, err)
}

func TestEnqueue_InsertsPendingRowInCallerTx(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetLoops)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO loops_outbox")).
		WithArgs(sqlmock.AnyArg(), "vote_cast", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := repo.db.BeginTxx(ctx, nil)
	require.NoError(t, err)

	id, err := repo.Enqueue(ctx, tx, model.VoteCast{
		Voter:               model.Contact{Email: "v@example.com"},
		VotedForDisplayName: "Jane Doe",
		SubcategoryID:       "best-recruiter",
		NominationID:        "01N",
	})
	require.NoError(t, err)
	assert.Len(t, id, 26)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueue_RejectsInvalidPayloadWithoutTouchingDB(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetHubSpot)

	_, err := repo.Enqueue(context.Background(), nil, model.VoteCast{Voter: model.Contact{Email: "nope"}})
	assert.ErrorIs(t, err, model.ErrInvalidPayload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatch_ClaimsOldestPendingAndIncrementsAttempts(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetHubSpot)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM hubspot_outbox WHERE status = 'pending' ORDER BY created_at, id LIMIT ? FOR UPDATE SKIP LOCKED")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("01A").AddRow("01B"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE hubspot_outbox SET status = 'processing', attempt_count = attempt_count + 1")).
		WithArgs("01A", "01B").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM hubspot_outbox WHERE id IN (?, ?) ORDER BY created_at, id")).
		WithArgs("01A", "01B").
		WillReturnRows(sqlmock.NewRows(outboxCols).
			AddRow("01A", "vote_cast", []byte(`{}`), "processing", 1, "", now, now).
			AddRow("01B", "vote_cast", []byte(`{}`), "processing", 2, "timeout", now, now))
	mock.ExpectCommit()

	got, err := repo.ClaimBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "01A", got[0].ID)
	assert.Equal(t, model.OutboxProcessing, got[0].Status)
	assert.Equal(t, 2, got[1].AttemptCount)
	assert.Equal(t, "timeout", got[1].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatch_EmptyCommitsWithoutUpdate(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetLoops)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM loops_outbox")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	got, err := repo.ClaimBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimByID_NotPendingReturnsNil(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetHubSpot)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM hubspot_outbox WHERE id = ? AND status = 'pending' FOR UPDATE SKIP LOCKED")).
		WithArgs("01A").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	ev, err := repo.ClaimByID(context.Background(), "01A")
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed_ReturnsResultingStatus(t *testing.T) {
	cases := []struct {
		name      string
		permanent bool
		status    string
	}{
		{"retryable below ceiling", false, "pending"},
		{"ceiling reached", false, "dead"},
		{"permanent", true, "dead"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newOutboxRepo(t, model.TargetHubSpot)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("SET status = CASE WHEN ? OR attempt_count >= ? THEN 'dead' ELSE 'pending' END")).
				WithArgs(tc.permanent, 3, "boom", "01A").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM hubspot_outbox WHERE id = ?")).
				WithArgs("01A").
				WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(tc.status))
			mock.ExpectCommit()

			st, err := repo.MarkFailed(context.Background(), "01A", "boom", tc.permanent)
			require.NoError(t, err)
			assert.Equal(t, model.OutboxStatus(tc.status), st)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// storableText matches text a utf8mb4 column accepts within maxErrorLen.
type storableText struct{}

func (storableText) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && utf8.ValidString(s) && len(s) <= maxErrorLen && len(s) > maxErrorLen-4
}

func TestMarkFailed_TruncatesOnRuneBoundary(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetHubSpot)
	msg := "hubspot upsert contact: 400: José " + strings.Repeat("é", 1500)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE hubspot_outbox").
		WithArgs(false, 3, storableText{}, "01A").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM hubspot_outbox WHERE id = ?")).
		WithArgs("01A").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectCommit()

	st, err := repo.MarkFailed(context.Background(), "01A", msg, false)
	require.NoError(t, err)
	assert.Equal(t, model.OutboxPending, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed_NotProcessing(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetLoops)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE loops_outbox").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.MarkFailed(context.Background(), "01A", "boom", false)
	assert.ErrorIs(t, err, ErrNotClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDone(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetHubSpot)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'done', last_error = ''")).
		WithArgs("01A").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkDone(context.Background(), "01A"))

	mock.ExpectExec("UPDATE hubspot_outbox").
		WithArgs("01B").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkDone(context.Background(), "01B"), ErrNotClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeueStale_AppliesCeiling(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetHubSpot)

	// the cutoff is computed by MySQL, never from the client clock
	mock.ExpectExec(regexp.QuoteMeta("SET status = CASE WHEN attempt_count >= ? THEN 'dead' ELSE 'pending' END") +
		"(?s).*" + regexp.QuoteMeta("updated_at < NOW(6) - INTERVAL ? MICROSECOND")).
		WithArgs(3, int64(600_000_000)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.RequeueStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouch(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetLoops)
	q := regexp.QuoteMeta("UPDATE loops_outbox") + "(?s).*" + regexp.QuoteMeta("SET updated_at = NOW(6)") +
		".*" + regexp.QuoteMeta("WHERE id = ? AND status = 'processing'")

	mock.ExpectExec(q).WithArgs("01A").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("01B").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Touch(context.Background(), "01A"))
	assert.ErrorIs(t, repo.Touch(context.Background(), "01B"), ErrNotClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplay(t *testing.T) {
	now := time.Now().UTC()

	t.Run("dead row goes back to pending", func(t *testing.T) {
		repo, mock := newOutboxRepo(t, model.TargetLoops)
		mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND status = 'dead'")).
			WithArgs("01A").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Replay(context.Background(), "01A"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row that is not dead", func(t *testing.T) {
		repo, mock := newOutboxRepo(t, model.TargetLoops)
		mock.ExpectExec("UPDATE loops_outbox").WithArgs("01A").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM loops_outbox WHERE id = ").
			WithArgs("01A").
			WillReturnRows(sqlmock.NewRows(outboxCols).AddRow("01A", "vote_cast", []byte(`{}`), "done", 1, "", now, now))

		assert.ErrorIs(t, repo.Replay(context.Background(), "01A"), ErrNotDead)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown row", func(t *testing.T) {
		repo, mock := newOutboxRepo(t, model.TargetLoops)
		mock.ExpectExec("UPDATE loops_outbox").WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM loops_outbox WHERE id = ").WithArgs("nope").WillReturnRows(sqlmock.NewRows(outboxCols))

		assert.ErrorIs(t, repo.Replay(context.Background(), "nope"), ErrOutboxNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCountByStatus_ZeroFills(t *testing.T) {
	repo, mock := newOutboxRepo(t, model.TargetHubSpot)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS n FROM hubspot_outbox GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).AddRow("pending", 3).AddRow("dead", 1))

	got, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[model.OutboxStatus]int64{
		model.OutboxPending:    3,
		model.OutboxProcessing: 0,
		model.OutboxDone:       0,
		model.OutboxDead:       1,
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

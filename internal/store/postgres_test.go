package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stayscan/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_UpsertHotel(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO hotels").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.UpsertHotel(context.Background(), testHotel("h1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertHotel_ValidationShortCircuits(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	// No Exec expectation: an invalid record must never reach the database.
	err := st.UpsertHotel(context.Background(), &model.Hotel{SourceID: "x"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetTask_NoRows(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM tasks WHERE id").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := st.GetTask(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetTask(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	created := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "kind", "region_type", "business_zone_code", "price_level",
		"hotel_id", "priority", "status", "retry_count", "error_reason",
		"created_at", "started_at", "completed_at", "items_crawled", "items_target",
	}).AddRow(
		"t1", "review_fetch", nil, nil, nil,
		"h1", 14, "pending", 0, nil,
		created, nil, nil, 0, 300,
	)
	mock.ExpectQuery("SELECT (.+) FROM tasks WHERE id").
		WithArgs("t1").
		WillReturnRows(rows)

	got, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.TaskReviewFetch, got.Kind)
	assert.Equal(t, "h1", got.HotelID)
	assert.Equal(t, 300, got.ItemsTarget)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ResetFailed(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE tasks SET status").
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	n, err := st.ResetFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TaskStats(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"status", "kind", "count"}).
		AddRow("pending", "list_fetch", 3).
		AddRow("completed", "review_fetch", 2).
		AddRow("failed", "review_fetch", 1)
	mock.ExpectQuery("SELECT status, kind, COUNT").WillReturnRows(rows)

	stats, err := st.TaskStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.ByKind[model.TaskKind("list_fetch")])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_WithTx_Rollback(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hotels").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	sentinel := assert.AnError
	err := st.WithTx(context.Background(), func(tx Store) error {
		if err := tx.UpsertHotel(context.Background(), testHotel("h1")); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_WithTx_Commit(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO task_logs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := st.WithTx(context.Background(), func(tx Store) error {
		return tx.AppendTaskLog(context.Background(), "t1", "INFO", "ok")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

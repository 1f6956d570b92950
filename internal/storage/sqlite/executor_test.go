package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newMockExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock, *observer.ObservedLogs) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	core, logs := observer.New(zapcore.ErrorLevel)
	return NewExecutor(sqlx.NewDb(mockDB, "sqlmock"), zap.New(core)), mock, logs
}

func TestExecutorCommits(t *testing.T) {
	t.Parallel()

	exec, mock, logs := newMockExecutor(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE crawl SET "end" = ?`)).
		WithArgs("2022-07-08", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := exec.Execute(context.Background(), `UPDATE crawl SET "end" = ? WHERE id = ?`, "2022-07-08", int64(3))
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, logs.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorRollsBackAndLogs(t *testing.T) {
	t.Parallel()

	exec, mock, logs := newMockExecutor(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO record`)).
		WillReturnError(errors.New("UNIQUE constraint failed: record.crawl_id, record.ranking"))
	mock.ExpectRollback()

	_, err := exec.Execute(context.Background(), "INSERT INTO record\n\t(crawl_id, ranking)\nVALUES (?, ?)", int64(1), 0)
	require.ErrorContains(t, err, "UNIQUE constraint failed")

	entries := logs.FilterMessage("statement failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "INSERT INTO record (crawl_id, ranking) VALUES (?, ?)", fields["statement"])
	assert.Contains(t, fields["error"], "UNIQUE")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorCommitFailure(t *testing.T) {
	t.Parallel()

	exec, mock, logs := newMockExecutor(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO crawl`)).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	_, err := exec.Execute(context.Background(), `INSERT INTO crawl ("begin") VALUES (?)`, "now")
	require.ErrorContains(t, err, "commit")
	assert.Equal(t, 1, logs.FilterMessage("statement failed").Len())
}

func TestExecutorBeginFailure(t *testing.T) {
	t.Parallel()

	exec, mock, _ := newMockExecutor(t)
	mock.ExpectBegin().WillReturnError(errors.New("disk I/O error"))

	_, err := exec.Execute(context.Background(), `DELETE FROM crawl`)
	require.ErrorContains(t, err, "begin transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorSelectFailureIsLogged(t *testing.T) {
	t.Parallel()

	exec, mock, logs := newMockExecutor(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id`)).WillReturnError(errors.New("no such table: crawl"))

	var ids []int64
	err := exec.Select(context.Background(), &ids, `SELECT id FROM crawl`)
	require.ErrorContains(t, err, "no such table")
	assert.Equal(t, 1, logs.FilterMessage("statement failed").Len())
}

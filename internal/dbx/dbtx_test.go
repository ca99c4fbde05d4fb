package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func insert(ctx context.Context, tx DBTX) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('ok')`)
	return err
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db, mock := setupDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO t`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, WithTx(context.Background(), db, nil, insert))
}

func TestWithTx_RollbackOnFnError(t *testing.T) {
	db, mock := setupDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO t`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, insert(ctx, tx))
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db, mock := setupDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		panic("kaput")
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db, mock := setupDB(t)
	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestWithTx_RetriesSerializationFailures(t *testing.T) {
	db, mock := setupDB(t)
	serialization := &pgconn.PgError{Code: codeSerializationFailure}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO t`).WillReturnError(serialization)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO t`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	calls := 0
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		calls++
		return insert(ctx, tx)
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestWithTx_GivesUpAfterMaxAttempts(t *testing.T) {
	db, mock := setupDB(t)
	deadlock := &pgconn.PgError{Code: codeDeadlockDetected}
	for range maxAttempts {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO t`).WillReturnError(deadlock)
		mock.ExpectRollback()
	}

	err := WithTx(context.Background(), db, nil, insert)
	require.ErrorContains(t, err, "after 3 attempts")
	require.True(t, IsRetryable(err))
}

func TestClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation})

	require.True(t, IsUniqueViolation(unique))
	require.False(t, IsRetryable(unique))
	require.False(t, IsUniqueViolation(errors.New("plain")))
	require.False(t, IsRetryable(nil))
}

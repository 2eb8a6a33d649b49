package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectrum-club/internal/apperr"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func TestWithinTxCommits(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE club.programs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewTransactor(db).WithinTx(context.Background(), sql.LevelReadCommitted, func(ctx context.Context) error {
		assert.True(t, InTx(ctx))
		_, err := Conn(ctx, db).ExecContext(ctx, "UPDATE club.programs SET is_active = TRUE")
		return err
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := NewTransactor(db).WithinTx(context.Background(), sql.LevelReadCommitted, func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxNestedJoinsOuter(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tr := NewTransactor(db)
	calls := 0
	err := tr.WithinTx(context.Background(), sql.LevelRepeatableRead, func(ctx context.Context) error {
		return tr.WithinTx(ctx, sql.LevelReadCommitted, func(ctx context.Context) error {
			calls++
			return nil
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnOutsideTxIsPool(t *testing.T) {
	db, _ := newMock(t)
	assert.Equal(t, sqlx.ExtContext(db), Conn(context.Background(), db))
	assert.False(t, InTx(context.Background()))
}

func TestTranslate(t *testing.T) {
	unique := &pq.Error{Code: "23505", Message: "duplicate key"}
	err := Translate(unique)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.True(t, IsUniqueViolation(err))

	serialization := &pq.Error{Code: "40001", Message: "could not serialize access"}
	assert.ErrorIs(t, Translate(serialization), apperr.ErrConflict)

	check := &pq.Error{Code: "23514", Message: "violates check constraint"}
	assert.ErrorIs(t, Translate(check), apperr.ErrInvalidState)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, Translate(plain))
	assert.False(t, IsUniqueViolation(plain))
}

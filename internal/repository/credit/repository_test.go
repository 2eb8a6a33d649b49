package credit

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectrum-club/internal/apperr"
	database "spectrum-club/pkg"
)

func newRepo(t *testing.T) (*creditRepository, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	db := sqlx.NewDb(raw, "postgres")
	return &creditRepository{db: db}, db, mock
}

func TestLockBucketsRequiresTransaction(t *testing.T) {
	repo, _, _ := newRepo(t)

	_, err := repo.LockBuckets(context.Background(), []int64{1, 2})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestLockBucketsOrdersAndLocks(t *testing.T) {
	repo, db, mock := newRepo(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_user_id", "group_id", "hours_remaining", "created_at"}).
			AddRow(3, 7, nil, "0.5", created).
			AddRow(9, 2, 4, "2.0", created))
	mock.ExpectCommit()

	err := database.NewTransactor(db).WithinTx(context.Background(), sql.LevelReadCommitted, func(ctx context.Context) error {
		buckets, err := repo.LockBuckets(ctx, []int64{9, 3})
		require.NoError(t, err)
		require.Len(t, buckets, 2)
		assert.Equal(t, int64(3), buckets[0].ID)
		assert.Nil(t, buckets[0].GroupID)
		assert.Equal(t, 0.5, buckets[0].HoursRemaining)
		assert.Equal(t, int64(4), *buckets[1].GroupID)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitShortBucketIsConflict(t *testing.T) {
	repo, _, mock := newRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("hours_remaining >= $1")).
		WithArgs(1.5, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Debit(context.Background(), 3, 1.5)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestHoursAvailableSumsIndividualAndGroups(t *testing.T) {
	repo, _, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(hours_remaining), 0)")).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("3.5"))

	hours, err := repo.HoursAvailable(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.5, hours)
}

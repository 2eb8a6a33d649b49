package attendance

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
)

func newRepo(t *testing.T) (*attendanceRepository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return &attendanceRepository{db: sqlx.NewDb(raw, "postgres")}, mock
}

func TestGetAbsentReturnsNil(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM club.attendance")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	a, err := repo.Get(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO club.attendance")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	err := repo.Create(context.Background(), &models.Attendance{OccurrenceID: 1, UserID: 2, EnrollmentID: 3, MarkedBy: 4, MarkedAt: time.Now()})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestProtectedOccurrencesSingleQuery(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT occurrence_id")).
		WillReturnRows(sqlmock.NewRows([]string{"occurrence_id"}).AddRow(2).AddRow(5))

	protected, err := repo.ProtectedOccurrences(context.Background(), []int64{1, 2, 3, 5})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{2: true, 5: true}, protected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEligibleUsersKeepsZeroRemaining(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN club.attendance a")).
		WithArgs(int64(10), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "first_name", "last_name", "enrollment_id", "sessions_remaining", "present"}).
			AddRow(1, "Анна", "Иванова", 11, 0, false).
			AddRow(2, "Петр", "Смирнов", 12, 4, true))

	users, err := repo.EligibleUsers(context.Background(), 10, 3)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, 0, users[0].SessionsRemaining)
	assert.True(t, users[1].Present)
}

package subscription

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

func newRepo(t *testing.T) (*enrollmentRepository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return &enrollmentRepository{db: sqlx.NewDb(raw, "postgres")}, mock
}

func TestCompareAndUpdateBumpsRevision(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	e := &models.Enrollment{ID: 5, SessionsPurchased: 10, SessionsRemaining: 0, Status: models.EnrollmentExhausted, Revision: 3, LastAttendedAt: &now}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $4 AND revision = $5")).
		WithArgs(0, models.EnrollmentExhausted, &now, int64(5), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(4))

	require.NoError(t, repo.CompareAndUpdate(context.Background(), e))
	assert.Equal(t, int64(4), e.Revision)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndUpdateLostRaceIsConflict(t *testing.T) {
	repo, mock := newRepo(t)
	e := &models.Enrollment{ID: 5, SessionsRemaining: 2, Status: models.EnrollmentActive, Revision: 3}

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE club.enrollments")).
		WillReturnRows(sqlmock.NewRows([]string{"revision"}))

	err := repo.CompareAndUpdate(context.Background(), e)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, int64(3), e.Revision)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateActiveIsInvalidState(t *testing.T) {
	repo, mock := newRepo(t)
	e := &models.Enrollment{UserID: 1, ProgramID: 2, SessionsPurchased: 8, SessionsRemaining: 8, Status: models.EnrollmentActive}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO club.enrollments")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint \"uq_enrollments_active\""})

	err := repo.Create(context.Background(), e)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveNotFound(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("status = 'ACTIVE'")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetActive(context.Background(), 1, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

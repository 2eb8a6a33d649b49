package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	database "spectrum-club/pkg"
)

type enrollmentRepository struct {
	db *sqlx.DB
}

func NewEnrollmentRepository(db *sqlx.DB) repository.EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

const enrollmentColumns = `
	id, user_id, program_id, sessions_purchased, sessions_remaining,
	status, revision, last_attended_at, created_at
`

func (r *enrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	query := `
		INSERT INTO club.enrollments
		(user_id, program_id, sessions_purchased, sessions_remaining, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, revision, created_at
	`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		enrollment.UserID,
		enrollment.ProgramID,
		enrollment.SessionsPurchased,
		enrollment.SessionsRemaining,
		enrollment.Status,
	)
	if err := row.Scan(&enrollment.ID, &enrollment.Revision, &enrollment.CreatedAt); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("user %d already has an active enrollment in program %d: %w",
				enrollment.UserID, enrollment.ProgramID, apperr.ErrInvalidState)
		}
		return database.Translate(err)
	}
	return nil
}

func (r *enrollmentRepository) GetByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM club.enrollments WHERE id = $1`

	var enrollment models.Enrollment
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &enrollment, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("enrollment %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *enrollmentRepository) GetActive(ctx context.Context, userID, programID int64) (*models.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM club.enrollments
		WHERE user_id = $1 AND program_id = $2 AND status = 'ACTIVE'
	`
	var enrollment models.Enrollment
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &enrollment, query, userID, programID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active enrollment for user %d program %d: %w", userID, programID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &enrollment, nil
}

// CompareAndUpdate - одна инструкция сравнения и инкремента ревизии.
// Ноль затронутых строк значит, что другой писатель успел раньше.
func (r *enrollmentRepository) CompareAndUpdate(ctx context.Context, enrollment *models.Enrollment) error {
	query := `
		UPDATE club.enrollments
		SET sessions_remaining = $1,
		    status = $2,
		    last_attended_at = $3,
		    revision = revision + 1
		WHERE id = $4 AND revision = $5
		RETURNING revision
	`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		enrollment.SessionsRemaining,
		enrollment.Status,
		enrollment.LastAttendedAt,
		enrollment.ID,
		enrollment.Revision,
	)
	var revision int64
	if err := row.Scan(&revision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("enrollment %d changed since revision %d: %w", enrollment.ID, enrollment.Revision, apperr.ErrConflict)
		}
		return database.Translate(err)
	}
	enrollment.Revision = revision
	return nil
}

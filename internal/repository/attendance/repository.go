package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	database "spectrum-club/pkg"
)

type attendanceRepository struct {
	db *sqlx.DB
}

func NewAttendanceRepository(db *sqlx.DB) repository.AttendanceRepository {
	return &attendanceRepository{db: db}
}

// Get возвращает nil, nil если отметки нет.
func (r *attendanceRepository) Get(ctx context.Context, occurrenceID, userID int64) (*models.Attendance, error) {
	query := `
		SELECT id, occurrence_id, user_id, enrollment_id, marked_by, marked_at
		FROM club.attendance
		WHERE occurrence_id = $1 AND user_id = $2
	`
	var attendance models.Attendance
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &attendance, query, occurrenceID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &attendance, nil
}

func (r *attendanceRepository) Create(ctx context.Context, attendance *models.Attendance) error {
	query := `
		INSERT INTO club.attendance
		(occurrence_id, user_id, enrollment_id, marked_by, marked_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &attendance.ID, query,
		attendance.OccurrenceID,
		attendance.UserID,
		attendance.EnrollmentID,
		attendance.MarkedBy,
		attendance.MarkedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attendance for occurrence %d user %d: %w",
			attendance.OccurrenceID, attendance.UserID, database.Translate(err))
	}
	return nil
}

func (r *attendanceRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM club.attendance WHERE id = $1`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id)
	return err
}

func (r *attendanceRepository) ProtectedOccurrences(ctx context.Context, ids []int64) (map[int64]bool, error) {
	protected := make(map[int64]bool)
	if len(ids) == 0 {
		return protected, nil
	}

	query := `
		SELECT DISTINCT occurrence_id
		FROM club.attendance
		WHERE occurrence_id = ANY($1::bigint[])
	`
	var withAttendance []int64
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &withAttendance, query, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, id := range withAttendance {
		protected[id] = true
	}
	return protected, nil
}

// EligibleUsers - все активные абонементы программы с отметкой присутствия.
// Остаток занятий намеренно не фильтруется.
func (r *attendanceRepository) EligibleUsers(ctx context.Context, occurrenceID, programID int64) ([]models.EligibleUser, error) {
	query := `
		SELECT
			e.user_id,
			u.first_name,
			u.last_name,
			e.id AS enrollment_id,
			e.sessions_remaining,
			(a.id IS NOT NULL) AS present
		FROM club.enrollments e
		JOIN club.users u ON u.id = e.user_id
		LEFT JOIN club.attendance a ON a.occurrence_id = $1 AND a.user_id = e.user_id
		WHERE e.program_id = $2 AND e.status = 'ACTIVE'
		ORDER BY u.first_name, u.last_name, e.user_id
	`
	var users []models.EligibleUser
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &users, query, occurrenceID, programID); err != nil {
		return nil, err
	}
	return users, nil
}

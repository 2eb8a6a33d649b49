package schedule_template

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	database "spectrum-club/pkg"
)

type weekScheduleRepository struct {
	db *sqlx.DB
}

func NewWeekScheduleRepository(db *sqlx.DB) repository.WeekScheduleRepository {
	return &weekScheduleRepository{db: db}
}

const slotColumns = `
	s.id, s.program_id, s.day_of_week, s.start_time, s.end_time,
	s.coach_id, s.description, s.is_active, s.created_at, s.updated_at
`

func (r *weekScheduleRepository) GetByID(ctx context.Context, id int64) (*models.RecurringSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM club.recurring_slots s WHERE s.id = $1`

	var slot models.RecurringSlot
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &slot, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("slot %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &slot, nil
}

// GetActiveByPrograms - активные шаблоны активных программ одним запросом.
func (r *weekScheduleRepository) GetActiveByPrograms(ctx context.Context, programIDs []int64) ([]models.RecurringSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM club.recurring_slots s
		JOIN club.programs p ON p.id = s.program_id
		WHERE s.is_active = TRUE
		AND p.is_active = TRUE
		AND s.program_id = ANY($1::bigint[])
		ORDER BY s.program_id, s.day_of_week, s.start_time, s.id
	`

	var slots []models.RecurringSlot
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &slots, query, pq.Array(programIDs)); err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *weekScheduleRepository) UpdatePartial(ctx context.Context, id int64, patch models.SlotPatch) error {
	if patch.Empty() {
		return fmt.Errorf("slot %d: nothing to update: %w", id, apperr.ErrInvalidArgument)
	}

	// Базовый запрос
	query := `UPDATE club.recurring_slots SET updated_at = CURRENT_TIMESTAMP`

	// Динамически добавляем SET части
	args := []interface{}{}
	argIndex := 1

	if patch.CoachID != nil {
		query += fmt.Sprintf(", coach_id = $%d", argIndex)
		args = append(args, *patch.CoachID)
		argIndex++
	}

	if patch.DayOfWeek != nil {
		query += fmt.Sprintf(", day_of_week = $%d", argIndex)
		args = append(args, *patch.DayOfWeek)
		argIndex++
	}

	if patch.StartTime != nil {
		query += fmt.Sprintf(", start_time = $%d", argIndex)
		args = append(args, *patch.StartTime)
		argIndex++
	}

	if patch.EndTime != nil {
		query += fmt.Sprintf(", end_time = $%d", argIndex)
		args = append(args, *patch.EndTime)
		argIndex++
	}

	if patch.IsActive != nil {
		query += fmt.Sprintf(", is_active = $%d", argIndex)
		args = append(args, *patch.IsActive)
		argIndex++
	}

	query += fmt.Sprintf(" WHERE id = $%d", argIndex)
	args = append(args, id)

	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return database.Translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("slot %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

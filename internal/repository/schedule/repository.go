package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	database "spectrum-club/pkg"
)

// insertChunk держит число параметров одного INSERT ниже лимита PostgreSQL (65535).
const insertChunk = 1000

type occurrenceRepository struct {
	db *sqlx.DB
}

func NewOccurrenceRepository(db *sqlx.DB) repository.OccurrenceRepository {
	return &occurrenceRepository{db: db}
}

const occurrenceColumns = `
	id, program_id, slot_id, coach_id, starts_at, ends_at, cancelled, created_at, updated_at
`

func (r *occurrenceRepository) GetByID(ctx context.Context, id int64) (*models.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM club.occurrences WHERE id = $1`

	var occurrence models.Occurrence
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &occurrence, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("occurrence %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &occurrence, nil
}

func (r *occurrenceRepository) ListInWindow(ctx context.Context, programIDs []int64, from, to time.Time) ([]models.Occurrence, error) {
	query := `
		SELECT ` + occurrenceColumns + `
		FROM club.occurrences
		WHERE program_id = ANY($1::bigint[])
		AND starts_at >= $2 AND starts_at < $3
		ORDER BY program_id, starts_at
	`

	var occurrences []models.Occurrence
	err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &occurrences, query, pq.Array(programIDs), from, to)
	if err != nil {
		return nil, err
	}
	return occurrences, nil
}

func (r *occurrenceRepository) ListFutureActive(ctx context.Context, programID int64, from time.Time) ([]models.Occurrence, error) {
	query := `
		SELECT ` + occurrenceColumns + `
		FROM club.occurrences
		WHERE program_id = $1 AND starts_at >= $2 AND cancelled = FALSE
		ORDER BY starts_at
	`

	var occurrences []models.Occurrence
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &occurrences, query, programID, from); err != nil {
		return nil, err
	}
	return occurrences, nil
}

func (r *occurrenceRepository) InsertBatch(ctx context.Context, occurrences []models.Occurrence) error {
	query := `
		INSERT INTO club.occurrences
		(program_id, slot_id, coach_id, starts_at, ends_at, cancelled)
		VALUES (:program_id, :slot_id, :coach_id, :starts_at, :ends_at, :cancelled)
	`
	conn := database.Conn(ctx, r.db)
	for start := 0; start < len(occurrences); start += insertChunk {
		end := min(start+insertChunk, len(occurrences))
		if _, err := sqlx.NamedExecContext(ctx, conn, query, occurrences[start:end]); err != nil {
			return fmt.Errorf("insert occurrences: %w", database.Translate(err))
		}
	}
	return nil
}

func (r *occurrenceRepository) UpdateBatch(ctx context.Context, occurrences []models.Occurrence) error {
	if len(occurrences) == 0 {
		return nil
	}

	ids := make([]int64, len(occurrences))
	slotIDs := make([]int64, len(occurrences))
	coachIDs := make([]int64, len(occurrences))
	endsAt := make([]string, len(occurrences))
	cancelled := make([]bool, len(occurrences))
	for i, o := range occurrences {
		ids[i] = o.ID
		slotIDs[i] = o.SlotID
		coachIDs[i] = o.CoachID
		endsAt[i] = o.EndsAt.UTC().Format(time.RFC3339Nano)
		cancelled[i] = o.Cancelled
	}

	query := `
		UPDATE club.occurrences AS o
		SET slot_id = v.slot_id,
		    coach_id = v.coach_id,
		    ends_at = v.ends_at,
		    cancelled = v.cancelled,
		    updated_at = CURRENT_TIMESTAMP
		FROM (
			SELECT unnest($1::bigint[]) AS id,
			       unnest($2::bigint[]) AS slot_id,
			       unnest($3::bigint[]) AS coach_id,
			       unnest($4::timestamptz[]) AS ends_at,
			       unnest($5::boolean[]) AS cancelled
		) AS v
		WHERE o.id = v.id
	`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		pq.Array(ids),
		pq.Array(slotIDs),
		pq.Array(coachIDs),
		pq.Array(endsAt),
		pq.Array(cancelled),
	)
	if err != nil {
		return fmt.Errorf("update occurrences: %w", database.Translate(err))
	}
	return nil
}

func (r *occurrenceRepository) CancelUnprotected(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	// NOT EXISTS повторяет проверку защиты на стороне БД: отметка, вставленная
	// между чтением и отменой, все равно не даст отменить занятие.
	query := `
		UPDATE club.occurrences AS o
		SET cancelled = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE o.id = ANY($1::bigint[])
		AND o.cancelled = FALSE
		AND NOT EXISTS (SELECT 1 FROM club.attendance a WHERE a.occurrence_id = o.id)
	`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, database.Translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

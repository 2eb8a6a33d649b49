package program

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

type programRepository struct {
	db *sqlx.DB
}

func NewProgramRepository(db *sqlx.DB) repository.ProgramRepository {
	return &programRepository{db: db}
}

func (r *programRepository) GetByID(ctx context.Context, id int64) (*models.Program, error) {
	query := `
		SELECT id, name, code, is_active, created_at
		FROM club.programs
		WHERE id = $1
	`
	var program models.Program
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &program, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("program %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &program, nil
}

func (r *programRepository) ActiveIDs(ctx context.Context, ids []int64) ([]int64, error) {
	query := `
		SELECT id FROM club.programs
		WHERE is_active = TRUE
		AND (cardinality($1::bigint[]) = 0 OR id = ANY($1::bigint[]))
		ORDER BY id
	`
	if ids == nil {
		ids = []int64{}
	}
	var active []int64
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &active, query, pq.Array(ids)); err != nil {
		return nil, err
	}
	return active, nil
}

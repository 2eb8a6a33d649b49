package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	database "spectrum-club/pkg"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, COALESCE(telegram_id, 0) AS telegram_id, first_name, last_name, username, registered_at
		FROM club.users
		WHERE id = $1
	`
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) HasActiveMembership(ctx context.Context, userID int64, at time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM club.memberships
			WHERE user_id = $1
			AND status = 'ACTIVE'
			AND (valid_until IS NULL OR valid_until > $2)
		)
	`
	var exists bool
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &exists, query, userID, at)
	return exists, err
}

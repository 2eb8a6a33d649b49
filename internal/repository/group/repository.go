package group

import (
	"context"

	"github.com/jmoiron/sqlx"

	"spectrum-club/internal/repository"
	database "spectrum-club/pkg"
)

// Группы с общим пулом часов (семейные/корпоративные планы).
type groupRepository struct {
	db *sqlx.DB
}

func NewGroupRepository(db *sqlx.DB) repository.GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) ActiveGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT group_id
		FROM club.group_members
		WHERE user_id = $1 AND status = 'ACTIVE'
		ORDER BY group_id
	`
	var ids []int64
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &ids, query, userID); err != nil {
		return nil, err
	}
	return ids, nil
}

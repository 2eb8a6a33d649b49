package event

import (
	"context"

	"github.com/jmoiron/sqlx"

	"spectrum-club/internal/repository"
	database "spectrum-club/pkg"
)

type eventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) repository.EventRepository {
	return &eventRepository{db: db}
}

// MarkProcessed должен вызываться в той же транзакции, что и обработка события:
// при откате запись исчезнет и повторная доставка обработается заново.
func (r *eventRepository) MarkProcessed(ctx context.Context, eventID, eventKey string) (bool, error) {
	query := `
		INSERT INTO club.processed_events (event_id, event_key)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, eventID, eventKey)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

package models

import "time"

// Occurrence - конкретное датированное занятие, построенное из RecurringSlot.
// Уникально по (program_id, starts_at), никогда не удаляется физически.
type Occurrence struct {
	ID        int64     `db:"id" json:"id"`
	ProgramID int64     `db:"program_id" json:"program_id"`
	SlotID    int64     `db:"slot_id" json:"slot_id"`
	CoachID   int64     `db:"coach_id" json:"coach_id"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
	Cancelled bool      `db:"cancelled" json:"cancelled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type OccurrenceKey struct {
	ProgramID int64
	StartUnix int64
}

func (o Occurrence) Key() OccurrenceKey {
	return OccurrenceKey{ProgramID: o.ProgramID, StartUnix: o.StartsAt.Unix()}
}

type MaterializeResult struct {
	Inserted            int
	Updated             int
	SkippedMissingCoach int
	SkippedInvalid      int
}

type RebuildResult struct {
	Cancelled   int
	Materialize MaterializeResult
}

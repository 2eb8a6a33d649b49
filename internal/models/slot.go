package models

import "time"

// RecurringSlot - недельный шаблон занятия программы.
type RecurringSlot struct {
	ID          int64     `db:"id"`
	ProgramID   int64     `db:"program_id"`
	DayOfWeek   int       `db:"day_of_week"` // 1=понедельник, 7=воскресенье
	StartTime   TimeOfDay `db:"start_time"`
	EndTime     TimeOfDay `db:"end_time"`
	CoachID     *int64    `db:"coach_id"`
	Description string    `db:"description"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Weekday переводит day_of_week в time.Weekday. false для значений вне 1..7.
func (s RecurringSlot) Weekday() (time.Weekday, bool) {
	if s.DayOfWeek < 1 || s.DayOfWeek > 7 {
		return 0, false
	}
	return time.Weekday(s.DayOfWeek % 7), true
}

// SlotPatch - частичное обновление шаблона. nil поля не трогаются.
type SlotPatch struct {
	CoachID   *int64
	DayOfWeek *int
	StartTime *TimeOfDay
	EndTime   *TimeOfDay
	IsActive  *bool
}

func (p SlotPatch) Empty() bool {
	return p.CoachID == nil && p.DayOfWeek == nil && p.StartTime == nil && p.EndTime == nil && p.IsActive == nil
}

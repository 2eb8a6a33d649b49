package models

import (
	"fmt"
	"time"

	"spectrum-club/internal/apperr"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentExhausted EnrollmentStatus = "EXHAUSTED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment - купленный абонемент на занятия программы.
type Enrollment struct {
	ID                int64            `db:"id" json:"id"`
	UserID            int64            `db:"user_id" json:"user_id"`
	ProgramID         int64            `db:"program_id" json:"program_id"`
	SessionsPurchased int              `db:"sessions_purchased" json:"sessions_purchased"`
	SessionsRemaining int              `db:"sessions_remaining" json:"sessions_remaining"`
	Status            EnrollmentStatus `db:"status" json:"status"`
	Revision          int64            `db:"revision" json:"revision"`
	LastAttendedAt    *time.Time       `db:"last_attended_at" json:"last_attended_at,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
}

// Decrement списывает одно занятие. EXHAUSTED ставится, когда остаток дошел до нуля.
func (e *Enrollment) Decrement(now time.Time) error {
	if e.Status != EnrollmentActive {
		return fmt.Errorf("enrollment %d is %s: %w", e.ID, e.Status, apperr.ErrInvalidState)
	}
	if e.SessionsRemaining < 1 {
		return fmt.Errorf("enrollment %d has no sessions remaining: %w", e.ID, apperr.ErrInvalidState)
	}
	e.SessionsRemaining--
	e.LastAttendedAt = &now
	if e.SessionsRemaining == 0 {
		e.Status = EnrollmentExhausted
	}
	return nil
}

// Refund возвращает одно занятие. CANCELLED остается CANCELLED.
func (e *Enrollment) Refund() error {
	if e.SessionsRemaining >= e.SessionsPurchased {
		return fmt.Errorf("enrollment %d already holds all %d sessions: %w", e.ID, e.SessionsPurchased, apperr.ErrInvalidState)
	}
	e.SessionsRemaining++
	if e.Status == EnrollmentExhausted {
		e.Status = EnrollmentActive
	}
	return nil
}

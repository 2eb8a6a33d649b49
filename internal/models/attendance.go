package models

import "time"

// Attendance - факт присутствия пользователя на занятии. Само существование строки
// означает PRESENT.
type Attendance struct {
	ID           int64     `db:"id" json:"id"`
	OccurrenceID int64     `db:"occurrence_id" json:"occurrence_id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	EnrollmentID int64     `db:"enrollment_id" json:"enrollment_id"`
	MarkedBy     int64     `db:"marked_by" json:"marked_by"`
	MarkedAt     time.Time `db:"marked_at" json:"marked_at"`
}

// EligibleUser - строка списка для отметки посещения.
type EligibleUser struct {
	UserID            int64  `db:"user_id" json:"user_id"`
	FirstName         string `db:"first_name" json:"first_name"`
	LastName          string `db:"last_name" json:"last_name"`
	EnrollmentID      int64  `db:"enrollment_id" json:"enrollment_id"`
	SessionsRemaining int    `db:"sessions_remaining" json:"sessions_remaining"`
	Present           bool   `db:"present" json:"present"`
}

type MarkResult struct {
	Changed    bool
	Enrollment *Enrollment
}

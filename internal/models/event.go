package models

import "time"

type PackageKind string

const (
	PackageSessions PackageKind = "sessions"
	PackageHours    PackageKind = "hours"
)

// PaymentSucceeded - событие об успешной оплате. Доставляется как минимум один раз.
type PaymentSucceeded struct {
	EventID   string      `json:"event_id"`
	UserID    int64       `json:"user_id"`
	Kind      PackageKind `json:"kind"`
	ProgramID *int64      `json:"program_id,omitempty"`
	GroupID   *int64      `json:"group_id,omitempty"`
	Sessions  int         `json:"sessions,omitempty"`
	Hours     float64     `json:"hours,omitempty"`
}

type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventKey    string    `db:"event_key"`
	ProcessedAt time.Time `db:"processed_at"`
}

package service

import (
	"context"
	"time"

	"spectrum-club/internal/models"
)

// MembershipGuard - внешняя проверка членства в клубе.
type MembershipGuard interface {
	HasActivePrerequisite(ctx context.Context, userID int64) (bool, error)
	// EnsureActivePrerequisite возвращает apperr.ErrPreconditionFailed без членства
	EnsureActivePrerequisite(ctx context.Context, userID int64) error
}

// Notifier сообщает пользователю об исчерпанном абонементе.
type Notifier interface {
	EnrollmentExhausted(ctx context.Context, enrollment models.Enrollment) error
}

// ScheduleService - материализация шаблонов и жизненный цикл занятий.
type ScheduleService interface {
	Materialize(ctx context.Context, programIDs []int64, from, to time.Time) (models.MaterializeResult, error)
	CancelFuture(ctx context.Context, programID int64, from time.Time) (int, error)
	RebuildWindow(ctx context.Context, programID int64, from, to time.Time) (models.RebuildResult, error)
	// ListOccurrences - календарь программ за даты [from, to], включая отмененные занятия
	ListOccurrences(ctx context.Context, programIDs []int64, from, to time.Time) ([]models.Occurrence, error)
	// EditSlot меняет шаблон и перестраивает окно программы на горизонт вперед
	EditSlot(ctx context.Context, slotID int64, patch models.SlotPatch) (models.RebuildResult, error)
}

type AttendanceService interface {
	MarkAttendance(ctx context.Context, occurrenceID, userID int64, present bool, markerID int64) (models.MarkResult, error)
	EligibleUsers(ctx context.Context, occurrenceID int64) ([]models.EligibleUser, error)
}

type SubscriptionService interface {
	SeedEnrollment(ctx context.Context, userID, programID int64, sessions int) (*models.Enrollment, error)
}

type CreditService interface {
	HoursAvailable(ctx context.Context, userID int64) (float64, error)
	// Consume возвращает доступный остаток после коммита
	Consume(ctx context.Context, userID int64, amount float64, adminID int64) (float64, error)
	SeedCreditBucket(ctx context.Context, ownerUserID int64, groupID *int64, hours float64) (*models.CreditBucket, error)
	History(ctx context.Context, userID int64, limit int) ([]models.ConsumptionRecord, error)
}

type ProvisioningService interface {
	// HandlePaymentSucceeded возвращает false для повторной доставки
	HandlePaymentSucceeded(ctx context.Context, event models.PaymentSucceeded) (bool, error)
}

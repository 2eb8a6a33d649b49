package repository

import (
	"context"
	"time"

	"spectrum-club/internal/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// HasActiveMembership - членство в клубе, которое проверяет guard
	HasActiveMembership(ctx context.Context, userID int64, at time.Time) (bool, error)
}

type ProgramRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Program, error)
	// ActiveIDs - активные программы из ids, либо все активные при пустом ids
	ActiveIDs(ctx context.Context, ids []int64) ([]int64, error)
}

type WeekScheduleRepository interface {
	GetByID(ctx context.Context, id int64) (*models.RecurringSlot, error)
	GetActiveByPrograms(ctx context.Context, programIDs []int64) ([]models.RecurringSlot, error)
	UpdatePartial(ctx context.Context, id int64, patch models.SlotPatch) error
}

type OccurrenceRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Occurrence, error)
	// ListInWindow - все занятия программ (включая отмененные) с from <= starts_at < to
	ListInWindow(ctx context.Context, programIDs []int64, from, to time.Time) ([]models.Occurrence, error)
	ListFutureActive(ctx context.Context, programID int64, from time.Time) ([]models.Occurrence, error)
	InsertBatch(ctx context.Context, occurrences []models.Occurrence) error
	UpdateBatch(ctx context.Context, occurrences []models.Occurrence) error
	// CancelUnprotected отменяет занятия без отметок посещения, возвращает число отмененных
	CancelUnprotected(ctx context.Context, ids []int64) (int, error)
}

type AttendanceRepository interface {
	Get(ctx context.Context, occurrenceID, userID int64) (*models.Attendance, error)
	Create(ctx context.Context, attendance *models.Attendance) error
	Delete(ctx context.Context, id int64) error
	// ProtectedOccurrences - подмножество ids, у которых есть хотя бы одна отметка
	ProtectedOccurrences(ctx context.Context, ids []int64) (map[int64]bool, error)
	EligibleUsers(ctx context.Context, occurrenceID, programID int64) ([]models.EligibleUser, error)
}

type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	GetByID(ctx context.Context, id int64) (*models.Enrollment, error)
	GetActive(ctx context.Context, userID, programID int64) (*models.Enrollment, error)
	// CompareAndUpdate сохраняет остаток, статус и last_attended_at, если ревизия
	// в БД равна enrollment.Revision, и увеличивает ревизию. Иначе apperr.ErrConflict.
	CompareAndUpdate(ctx context.Context, enrollment *models.Enrollment) error
}

type GroupRepository interface {
	ActiveGroupIDs(ctx context.Context, userID int64) ([]int64, error)
}

type CreditRepository interface {
	CreateBucket(ctx context.Context, bucket *models.CreditBucket) error
	// HoursAvailable - сумма личных пакетов userID и пакетов групп groupIDs
	HoursAvailable(ctx context.Context, userID int64, groupIDs []int64) (float64, error)
	// EligibleBucketIDs - личные пакеты и пакеты групп groupIDs, по возрастанию id
	EligibleBucketIDs(ctx context.Context, userID int64, groupIDs []int64) ([]int64, error)
	// LockBuckets берет FOR UPDATE в порядке возрастания id
	LockBuckets(ctx context.Context, ids []int64) ([]models.CreditBucket, error)
	Debit(ctx context.Context, bucketID int64, amount float64) error
	AppendConsumption(ctx context.Context, record *models.ConsumptionRecord) error
	History(ctx context.Context, userID int64, limit int) ([]models.ConsumptionRecord, error)
}

type EventRepository interface {
	// MarkProcessed возвращает false, если событие уже было обработано
	MarkProcessed(ctx context.Context, eventID, eventKey string) (bool, error)
}

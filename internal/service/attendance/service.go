package attendance_service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/metrics"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	"spectrum-club/internal/service"
	database "spectrum-club/pkg"
)

var tracer = otel.Tracer("spectrum-club/service/attendance")

type attendanceService struct {
	tx             database.Transactor
	attendanceRepo repository.AttendanceRepository
	occurrenceRepo repository.OccurrenceRepository
	enrollmentRepo repository.EnrollmentRepository
	guard          service.MembershipGuard
	notifier       service.Notifier
	metrics        *metrics.Metrics
	logger         *zap.Logger
	now            func() time.Time
}

func NewAttendanceService(
	tx database.Transactor,
	attendanceRepo repository.AttendanceRepository,
	occurrenceRepo repository.OccurrenceRepository,
	enrollmentRepo repository.EnrollmentRepository,
	guard service.MembershipGuard,
	notifier service.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) service.AttendanceService {
	return &attendanceService{
		tx:             tx,
		attendanceRepo: attendanceRepo,
		occurrenceRepo: occurrenceRepo,
		enrollmentRepo: enrollmentRepo,
		guard:          guard,
		notifier:       notifier,
		metrics:        m,
		logger:         logger.Named("attendance"),
		now:            time.Now,
	}
}

// MarkAttendance переводит отметку пользователя в состояние present.
// Повторная отметка и снятие отсутствующей отметки ничего не меняют (Changed=false).
// Проигрыш CAS по абонементу возвращается как apperr.ErrConflict, состояние не меняется.
func (s *attendanceService) MarkAttendance(ctx context.Context, occurrenceID, userID int64, present bool, markerID int64) (models.MarkResult, error) {
	ctx, span := tracer.Start(ctx, "attendance.MarkAttendance", trace.WithAttributes(
		attribute.Int64("occurrence.id", occurrenceID),
		attribute.Int64("user.id", userID),
		attribute.Bool("present", present),
	))
	defer span.End()

	if err := s.guard.EnsureActivePrerequisite(ctx, userID); err != nil {
		return models.MarkResult{}, err
	}

	var result models.MarkResult
	err := s.tx.WithinTx(ctx, sql.LevelReadCommitted, func(ctx context.Context) error {
		var err error
		if present {
			result, err = s.mark(ctx, occurrenceID, userID, markerID)
		} else {
			result, err = s.unmark(ctx, occurrenceID, userID)
		}
		return err
	})
	if err != nil {
		if apperr.IsRetryable(err) {
			s.metrics.LedgerConflicts.WithLabelValues("attendance").Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.MarkResult{}, fmt.Errorf("mark attendance of user %d at occurrence %d: %w", userID, occurrenceID, err)
	}

	s.observe(present, result)

	if present && result.Changed && result.Enrollment.Status == models.EnrollmentExhausted {
		s.metrics.EnrollmentsExhausted.Inc()
		if err := s.notifier.EnrollmentExhausted(ctx, *result.Enrollment); err != nil {
			s.logger.Warn("Не удалось уведомить об окончании абонемента",
				zap.Int64("enrollment_id", result.Enrollment.ID),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

func (s *attendanceService) mark(ctx context.Context, occurrenceID, userID, markerID int64) (models.MarkResult, error) {
	occurrence, err := s.occurrenceRepo.GetByID(ctx, occurrenceID)
	if err != nil {
		return models.MarkResult{}, err
	}

	existing, err := s.attendanceRepo.Get(ctx, occurrenceID, userID)
	if err != nil {
		return models.MarkResult{}, err
	}
	if existing != nil {
		enrollment, err := s.enrollmentRepo.GetByID(ctx, existing.EnrollmentID)
		if err != nil {
			return models.MarkResult{}, err
		}
		return models.MarkResult{Enrollment: enrollment}, nil
	}

	if occurrence.Cancelled {
		return models.MarkResult{}, fmt.Errorf("occurrence %d is cancelled: %w", occurrenceID, apperr.ErrInvalidState)
	}

	enrollment, err := s.enrollmentRepo.GetActive(ctx, userID, occurrence.ProgramID)
	if err != nil {
		return models.MarkResult{}, err
	}

	now := s.now()
	if err := enrollment.Decrement(now); err != nil {
		return models.MarkResult{}, err
	}
	if err := s.enrollmentRepo.CompareAndUpdate(ctx, enrollment); err != nil {
		return models.MarkResult{}, err
	}

	attendance := &models.Attendance{
		OccurrenceID: occurrenceID,
		UserID:       userID,
		EnrollmentID: enrollment.ID,
		MarkedBy:     markerID,
		MarkedAt:     now,
	}
	if err := s.attendanceRepo.Create(ctx, attendance); err != nil {
		return models.MarkResult{}, err
	}

	return models.MarkResult{Changed: true, Enrollment: enrollment}, nil
}

// unmark возвращает занятие в тот абонемент, с которого оно было списано.
func (s *attendanceService) unmark(ctx context.Context, occurrenceID, userID int64) (models.MarkResult, error) {
	if _, err := s.occurrenceRepo.GetByID(ctx, occurrenceID); err != nil {
		return models.MarkResult{}, err
	}

	existing, err := s.attendanceRepo.Get(ctx, occurrenceID, userID)
	if err != nil {
		return models.MarkResult{}, err
	}
	if existing == nil {
		return models.MarkResult{}, nil
	}

	enrollment, err := s.enrollmentRepo.GetByID(ctx, existing.EnrollmentID)
	if err != nil {
		return models.MarkResult{}, err
	}

	if err := s.attendanceRepo.Delete(ctx, existing.ID); err != nil {
		return models.MarkResult{}, err
	}
	if err := enrollment.Refund(); err != nil {
		return models.MarkResult{}, err
	}
	if err := s.enrollmentRepo.CompareAndUpdate(ctx, enrollment); err != nil {
		return models.MarkResult{}, err
	}

	return models.MarkResult{Changed: true, Enrollment: enrollment}, nil
}

func (s *attendanceService) EligibleUsers(ctx context.Context, occurrenceID int64) ([]models.EligibleUser, error) {
	ctx, span := tracer.Start(ctx, "attendance.EligibleUsers")
	defer span.End()

	occurrence, err := s.occurrenceRepo.GetByID(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	return s.attendanceRepo.EligibleUsers(ctx, occurrence.ID, occurrence.ProgramID)
}

func (s *attendanceService) observe(present bool, result models.MarkResult) {
	action := "noop"
	switch {
	case result.Changed && present:
		action = "mark"
	case result.Changed:
		action = "undo"
	}
	s.metrics.AttendanceMarks.WithLabelValues(action).Inc()

	if result.Changed {
		s.logger.Info("Посещение обновлено",
			zap.String("action", action),
			zap.Int64("enrollment_id", result.Enrollment.ID),
			zap.Int("sessions_remaining", result.Enrollment.SessionsRemaining),
			zap.String("status", string(result.Enrollment.Status)),
		)
	}
}

package subscription_service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	"spectrum-club/internal/service"
	database "spectrum-club/pkg"
)

// maxSessionsPerPackage отсекает опечатки в размере пакета.
const maxSessionsPerPackage = 100

type subscriptionService struct {
	tx             database.Transactor
	enrollmentRepo repository.EnrollmentRepository
	programRepo    repository.ProgramRepository
	userRepo       repository.UserRepository
	logger         *zap.Logger
}

func NewSubscriptionService(
	tx database.Transactor,
	enrollmentRepo repository.EnrollmentRepository,
	programRepo repository.ProgramRepository,
	userRepo repository.UserRepository,
	logger *zap.Logger,
) service.SubscriptionService {
	return &subscriptionService{
		tx:             tx,
		enrollmentRepo: enrollmentRepo,
		programRepo:    programRepo,
		userRepo:       userRepo,
		logger:         logger.Named("subscription"),
	}
}

// SeedEnrollment выдает абонемент на sessions занятий. Второй ACTIVE абонемент
// в той же программе - apperr.ErrInvalidState.
func (s *subscriptionService) SeedEnrollment(ctx context.Context, userID, programID int64, sessions int) (*models.Enrollment, error) {
	if sessions < 1 || sessions > maxSessionsPerPackage {
		return nil, fmt.Errorf("sessions %d out of 1..%d: %w", sessions, maxSessionsPerPackage, apperr.ErrInvalidArgument)
	}

	enrollment := &models.Enrollment{
		UserID:            userID,
		ProgramID:         programID,
		SessionsPurchased: sessions,
		SessionsRemaining: sessions,
		Status:            models.EnrollmentActive,
	}

	err := s.tx.WithinTx(ctx, sql.LevelReadCommitted, func(ctx context.Context) error {
		if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
			return err
		}
		program, err := s.programRepo.GetByID(ctx, programID)
		if err != nil {
			return err
		}
		if !program.IsActive {
			return fmt.Errorf("program %d is archived: %w", programID, apperr.ErrInvalidState)
		}
		return s.enrollmentRepo.Create(ctx, enrollment)
	})
	if err != nil {
		return nil, fmt.Errorf("seed enrollment: %w", err)
	}

	s.logger.Info("Абонемент выдан",
		zap.Int64("enrollment_id", enrollment.ID),
		zap.Int64("user_id", userID),
		zap.Int64("program_id", programID),
		zap.Int("sessions", sessions),
	)
	return enrollment, nil
}

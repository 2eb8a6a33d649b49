package user_service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/repository"
	"spectrum-club/internal/service"
)

type userService struct {
	userRepo repository.UserRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewMembershipGuard - проверка членства в клубе по club.memberships.
func NewMembershipGuard(userRepo repository.UserRepository, logger *zap.Logger) service.MembershipGuard {
	return &userService{
		userRepo: userRepo,
		logger:   logger.Named("membership"),
		now:      time.Now,
	}
}

func (s *userService) HasActivePrerequisite(ctx context.Context, userID int64) (bool, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return false, err
	}
	return s.userRepo.HasActiveMembership(ctx, userID, s.now())
}

func (s *userService) EnsureActivePrerequisite(ctx context.Context, userID int64) error {
	ok, err := s.HasActivePrerequisite(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("Нет активного членства", zap.Int64("user_id", userID))
		return fmt.Errorf("user %d has no active club membership: %w", userID, apperr.ErrPreconditionFailed)
	}
	return nil
}

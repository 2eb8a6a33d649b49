package credit_service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"slices"
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

const (
	hoursStep        = 0.5
	maxHoursPerCall  = 2.5
	maxHoursPerGrant = 200
	defaultHistory   = 20
	maxHistory       = 200
)

var tracer = otel.Tracer("spectrum-club/service/credit")

type creditService struct {
	tx         database.Transactor
	creditRepo repository.CreditRepository
	groupRepo  repository.GroupRepository
	userRepo   repository.UserRepository
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewCreditService(
	tx database.Transactor,
	creditRepo repository.CreditRepository,
	groupRepo repository.GroupRepository,
	userRepo repository.UserRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) service.CreditService {
	return &creditService{
		tx:         tx,
		creditRepo: creditRepo,
		groupRepo:  groupRepo,
		userRepo:   userRepo,
		metrics:    m,
		logger:     logger.Named("credit"),
		now:        time.Now,
	}
}

// HoursAvailable - личный остаток плюс остатки всех активных групп пользователя.
func (s *creditService) HoursAvailable(ctx context.Context, userID int64) (float64, error) {
	groupIDs, err := s.groupRepo.ActiveGroupIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.creditRepo.HoursAvailable(ctx, userID, groupIDs)
}

// Consume списывает amount часов с пакетов по возрастанию id. Все пакеты
// блокируются заранее в том же порядке, поэтому два списания с общего
// группового пакета выполняются строго друг за другом.
func (s *creditService) Consume(ctx context.Context, userID int64, amount float64, adminID int64) (float64, error) {
	ctx, span := tracer.Start(ctx, "credit.Consume", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Float64("amount", amount),
	))
	defer span.End()

	if err := validateAmount(amount, maxHoursPerCall); err != nil {
		return 0, err
	}

	var debits int
	err := s.tx.WithinTx(ctx, sql.LevelReadCommitted, func(ctx context.Context) error {
		var err error
		debits, err = s.consume(ctx, userID, amount, adminID)
		return err
	})
	if err != nil {
		if apperr.IsRetryable(err) {
			s.metrics.LedgerConflicts.WithLabelValues("credit").Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("consume %.1fh for user %d: %w", amount, userID, err)
	}

	s.metrics.CreditHoursConsumed.Add(amount)

	available, err := s.HoursAvailable(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Часы списаны",
		zap.Int64("user_id", userID),
		zap.Int64("admin_id", adminID),
		zap.Float64("amount", amount),
		zap.Int("buckets", debits),
		zap.Float64("available", available),
	)
	return available, nil
}

func (s *creditService) consume(ctx context.Context, userID int64, amount float64, adminID int64) (int, error) {
	groupIDs, err := s.groupRepo.ActiveGroupIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	available, err := s.creditRepo.HoursAvailable(ctx, userID, groupIDs)
	if err != nil {
		return 0, err
	}
	if available < amount {
		return 0, fmt.Errorf("%.1fh available, %.1fh requested: %w", available, amount, apperr.ErrInsufficientBalance)
	}

	ids, err := s.creditRepo.EligibleBucketIDs(ctx, userID, groupIDs)
	if err != nil {
		return 0, err
	}
	slices.Sort(ids)

	buckets, err := s.creditRepo.LockBuckets(ctx, ids)
	if err != nil {
		return 0, err
	}

	now := s.now()
	remaining := amount
	debits := 0
	for _, bucket := range buckets {
		if remaining <= 0 {
			break
		}
		take := math.Min(bucket.HoursRemaining, remaining)
		if take <= 0 {
			continue
		}
		if err := s.creditRepo.Debit(ctx, bucket.ID, take); err != nil {
			return 0, err
		}
		record := &models.ConsumptionRecord{
			BucketID:   bucket.ID,
			UserID:     userID,
			AdminID:    adminID,
			Amount:     take,
			ConsumedAt: now,
		}
		if err := s.creditRepo.AppendConsumption(ctx, record); err != nil {
			return 0, err
		}
		debits++
		// остатки хранятся с точностью до десятых
		remaining = math.Round((remaining-take)*10) / 10
	}

	if remaining > 0 {
		return 0, fmt.Errorf("locked buckets short by %.1fh: %w", remaining, apperr.ErrConflict)
	}
	return debits, nil
}

// SeedCreditBucket заводит личный (groupID == nil) или групповой пакет часов.
func (s *creditService) SeedCreditBucket(ctx context.Context, ownerUserID int64, groupID *int64, hours float64) (*models.CreditBucket, error) {
	if err := validateAmount(hours, maxHoursPerGrant); err != nil {
		return nil, err
	}

	bucket := &models.CreditBucket{
		OwnerUserID:    ownerUserID,
		GroupID:        groupID,
		HoursRemaining: hours,
	}
	err := s.tx.WithinTx(ctx, sql.LevelReadCommitted, func(ctx context.Context) error {
		if _, err := s.userRepo.GetByID(ctx, ownerUserID); err != nil {
			return err
		}
		return s.creditRepo.CreateBucket(ctx, bucket)
	})
	if err != nil {
		return nil, fmt.Errorf("seed credit bucket: %w", err)
	}

	fields := []zap.Field{
		zap.Int64("bucket_id", bucket.ID),
		zap.Int64("owner_user_id", ownerUserID),
		zap.Float64("hours", hours),
	}
	if groupID != nil {
		fields = append(fields, zap.Int64("group_id", *groupID))
	}
	s.logger.Info("Пакет часов выдан", fields...)
	return bucket, nil
}

func (s *creditService) History(ctx context.Context, userID int64, limit int) ([]models.ConsumptionRecord, error) {
	if limit <= 0 {
		limit = defaultHistory
	}
	limit = min(limit, maxHistory)
	return s.creditRepo.History(ctx, userID, limit)
}

func validateAmount(hours, ceiling float64) error {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 || hours > ceiling {
		return fmt.Errorf("hours %v out of (0, %.1f]: %w", hours, ceiling, apperr.ErrInvalidArgument)
	}
	if math.Mod(hours, hoursStep) != 0 {
		return fmt.Errorf("hours %v not a multiple of %.1f: %w", hours, hoursStep, apperr.ErrInvalidArgument)
	}
	return nil
}

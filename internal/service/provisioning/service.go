package provisioning_service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/metrics"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	"spectrum-club/internal/service"
	database "spectrum-club/pkg"
)

// EventKeyPaymentSucceeded - ключ события в club.processed_events.
const EventKeyPaymentSucceeded = "payment.succeeded"

type provisioningService struct {
	tx            database.Transactor
	eventRepo     repository.EventRepository
	subscriptions service.SubscriptionService
	credits       service.CreditService
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewProvisioningService(
	tx database.Transactor,
	eventRepo repository.EventRepository,
	subscriptions service.SubscriptionService,
	credits service.CreditService,
	m *metrics.Metrics,
	logger *zap.Logger,
) service.ProvisioningService {
	return &provisioningService{
		tx:            tx,
		eventRepo:     eventRepo,
		subscriptions: subscriptions,
		credits:       credits,
		metrics:       m,
		logger:        logger.Named("provisioning"),
	}
}

// HandlePaymentSucceeded выдает купленный пакет ровно один раз на event_id.
// Отметка об обработке пишется в той же транзакции, что и сам пакет.
func (s *provisioningService) HandlePaymentSucceeded(ctx context.Context, event models.PaymentSucceeded) (bool, error) {
	if err := validate(event); err != nil {
		s.metrics.ProvisioningEvents.WithLabelValues("rejected").Inc()
		return false, err
	}

	applied := false
	err := s.tx.WithinTx(ctx, sql.LevelReadCommitted, func(ctx context.Context) error {
		fresh, err := s.eventRepo.MarkProcessed(ctx, event.EventID, EventKeyPaymentSucceeded)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}

		switch event.Kind {
		case models.PackageSessions:
			_, err = s.subscriptions.SeedEnrollment(ctx, event.UserID, *event.ProgramID, event.Sessions)
		case models.PackageHours:
			_, err = s.credits.SeedCreditBucket(ctx, event.UserID, event.GroupID, event.Hours)
		}
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		s.metrics.ProvisioningEvents.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("provision event %s: %w", event.EventID, err)
	}

	if !applied {
		s.metrics.ProvisioningEvents.WithLabelValues("duplicate").Inc()
		s.logger.Info("Повторная доставка события пропущена", zap.String("event_id", event.EventID))
		return false, nil
	}

	s.metrics.ProvisioningEvents.WithLabelValues("applied").Inc()
	s.logger.Info("Оплата обработана",
		zap.String("event_id", event.EventID),
		zap.Int64("user_id", event.UserID),
		zap.String("kind", string(event.Kind)),
	)
	return true, nil
}

func validate(event models.PaymentSucceeded) error {
	if event.EventID == "" {
		return fmt.Errorf("event without id: %w", apperr.ErrInvalidArgument)
	}
	if event.UserID <= 0 {
		return fmt.Errorf("event %s: user id %d: %w", event.EventID, event.UserID, apperr.ErrInvalidArgument)
	}
	switch event.Kind {
	case models.PackageSessions:
		if event.ProgramID == nil {
			return fmt.Errorf("event %s: sessions package without program: %w", event.EventID, apperr.ErrInvalidArgument)
		}
	case models.PackageHours:
	default:
		return fmt.Errorf("event %s: unknown package kind %q: %w", event.EventID, event.Kind, apperr.ErrInvalidArgument)
	}
	return nil
}

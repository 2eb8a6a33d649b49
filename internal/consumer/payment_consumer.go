// Package consumer выдает купленные пакеты по событиям оплаты из RabbitMQ.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
	"spectrum-club/internal/service"
)

const (
	RKPaymentSucceeded = "payment.succeeded"

	defaultMaxTries = 5
)

var tracer = otel.Tracer("spectrum-club/consumer")

// DeliverySource - очередь, из которой читаются события. *mq.Consumer в проде.
type DeliverySource interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

type PaymentConsumer struct {
	source       DeliverySource
	provisioning service.ProvisioningService
	logger       *zap.Logger
	maxTries     uint
	newBackOff   func() backoff.BackOff
}

func NewPaymentConsumer(source DeliverySource, provisioning service.ProvisioningService, logger *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		source:       source,
		provisioning: provisioning,
		logger:       logger.Named("payment_consumer"),
		maxTries:     defaultMaxTries,
		newBackOff:   func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Run читает очередь до отмены ctx или закрытия канала.
// Ack - событие применено или уже было применено.
// Nack без requeue - событие некорректно, повтор не поможет.
// Nack с requeue - временная ошибка (БД, исчерпан лимит повторов по конфликту).
func (c *PaymentConsumer) Run(ctx context.Context) error {
	msgs, err := c.source.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *PaymentConsumer) dispatch(ctx context.Context, d amqp.Delivery) {
	ctx, span := tracer.Start(ctx, "consume "+d.RoutingKey,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.rabbitmq.destination.routing_key", d.RoutingKey),
		),
	)
	defer span.End()

	err := c.handleDelivery(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, apperr.ErrInvalidArgument) || errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidState):
		c.logger.Error("Событие отклонено",
			zap.String("routing_key", d.RoutingKey),
			zap.String("message_id", d.MessageId),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
	default:
		c.logger.Warn("Ошибка обработки, событие вернется в очередь",
			zap.String("routing_key", d.RoutingKey),
			zap.Error(err),
		)
		_ = d.Nack(false, true)
	}
}

func (c *PaymentConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	if d.RoutingKey != RKPaymentSucceeded {
		c.logger.Debug("Неизвестный ключ пропущен", zap.String("routing_key", d.RoutingKey))
		return nil
	}

	var event models.PaymentSucceeded
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return fmt.Errorf("decode %s: %v: %w", d.RoutingKey, err, apperr.ErrInvalidArgument)
	}

	_, err := backoff.Retry(ctx, func() (bool, error) {
		applied, err := c.provisioning.HandlePaymentSucceeded(ctx, event)
		if err != nil && !apperr.IsRetryable(err) {
			return false, backoff.Permanent(err)
		}
		return applied, err
	}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxTries(c.maxTries))
	return err
}

// Package saga содержит потребитель команд саги Payment Service.
package saga

import (
	"context"
	"errors"
	"fmt"

	"example.com/order-saga/pkg/events"
	"example.com/order-saga/pkg/kafka"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/services/payment/internal/service"
)

// maxHandlerRetries — количество повторов обработки события перед отправкой в DLQ.
const maxHandlerRetries = 3

// Consumer слушает топик payments и выполняет команды
// payment_requested и payment_refund_requested.
type Consumer struct {
	payments *kafka.Consumer
	svc      service.PaymentService
}

// NewConsumer создаёт потребитель команд Payment Service.
// dlq может быть nil — тогда необрабатываемые сообщения только логируются.
func NewConsumer(cfg kafka.Config, groupID string, svc service.PaymentService, dlq *kafka.Producer) (*Consumer, error) {
	payments, err := kafka.NewConsumer(cfg, events.TopicPayments, groupID)
	if err != nil {
		return nil, fmt.Errorf("consumer payments: %w", err)
	}

	if dlq != nil {
		payments.SetDLQProducer(dlq)
	}

	return &Consumer{
		payments: payments,
		svc:      svc,
	}, nil
}

// Run запускает чтение топика. Блокирует до отмены контекста.
func (c *Consumer) Run(ctx context.Context) {
	if err := c.payments.ConsumeWithRetry(ctx, c.dispatch, maxHandlerRetries); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Str("topic", events.TopicPayments).Msg("Consumer остановился с ошибкой")
	}
}

// dispatch разбирает событие и направляет его нужной команде.
// Собственные события (payment_processed, payment_refunded) пропускаются.
func (c *Consumer) dispatch(ctx context.Context, msg *kafka.Message) error {
	log := logger.FromContext(ctx)

	e, err := events.Unmarshal(msg.Value)
	if err != nil {
		// Неизвестная схема — подтверждаем, чтобы не зациклить партицию
		log.Error().Err(err).
			Str("topic", msg.Topic).
			Str("key", string(msg.Key)).
			Msg("Невалидное событие, сообщение отброшено")
		return nil
	}

	var handleErr error
	switch ev := e.(type) {
	case *events.PaymentRequested:
		handleErr = c.svc.ProcessPayment(ctx, ev)
	case *events.PaymentRefundRequested:
		handleErr = c.svc.RefundPayment(ctx, ev)
	default:
		return nil
	}

	status := "success"
	if handleErr != nil {
		status = "error"
	}
	metrics.RecordEventConsumed("payment", e.Type(), status)

	return handleErr
}

// Close закрывает consumer.
func (c *Consumer) Close() error {
	return c.payments.Close()
}

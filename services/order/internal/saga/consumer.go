package saga

import (
	"context"
	"errors"
	"fmt"

	"example.com/order-saga/pkg/events"
	"example.com/order-saga/pkg/kafka"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
)

// maxHandlerRetries — количество повторов обработки события перед отправкой в DLQ.
const maxHandlerRetries = 3

// Consumer слушает топики payments, inventory и shipping
// и продвигает заказы по шагам саги.
type Consumer struct {
	payments  *kafka.Consumer
	inventory *kafka.Consumer
	shipping  *kafka.Consumer
	handlers  *Handlers
}

// NewConsumer создаёт потребитель событий Order Service.
// dlq может быть nil — тогда необрабатываемые сообщения только логируются.
func NewConsumer(cfg kafka.Config, groupID string, handlers *Handlers, dlq *kafka.Producer) (*Consumer, error) {
	payments, err := kafka.NewConsumer(cfg, events.TopicPayments, groupID)
	if err != nil {
		return nil, fmt.Errorf("consumer payments: %w", err)
	}
	inventory, err := kafka.NewConsumer(cfg, events.TopicInventory, groupID)
	if err != nil {
		return nil, fmt.Errorf("consumer inventory: %w", err)
	}
	shipping, err := kafka.NewConsumer(cfg, events.TopicShipping, groupID)
	if err != nil {
		return nil, fmt.Errorf("consumer shipping: %w", err)
	}

	if dlq != nil {
		payments.SetDLQProducer(dlq)
		inventory.SetDLQProducer(dlq)
		shipping.SetDLQProducer(dlq)
	}

	return &Consumer{
		payments:  payments,
		inventory: inventory,
		shipping:  shipping,
		handlers:  handlers,
	}, nil
}

// Run запускает чтение всех топиков. Блокирует до отмены контекста.
func (c *Consumer) Run(ctx context.Context) {
	run := func(consumer *kafka.Consumer, topic string) {
		if err := consumer.ConsumeWithRetry(ctx, c.dispatch, maxHandlerRetries); err != nil &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error().Err(err).Str("topic", topic).Msg("Consumer остановился с ошибкой")
		}
	}

	go run(c.payments, events.TopicPayments)
	go run(c.inventory, events.TopicInventory)
	run(c.shipping, events.TopicShipping)
}

// dispatch разбирает событие и направляет его нужному обработчику.
// События, которые Order Service публикует сам (payment_requested,
// inventory_requested, ...), пропускаются без обработки.
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
	case *events.PaymentProcessed:
		handleErr = c.handlers.HandlePaymentProcessed(ctx, ev)
	case *events.PaymentRefunded:
		handleErr = c.handlers.HandlePaymentRefunded(ctx, ev)
	case *events.InventoryAllocated:
		handleErr = c.handlers.HandleInventoryAllocated(ctx, ev)
	case *events.OrderShipped:
		handleErr = c.handlers.HandleOrderShipped(ctx, ev)
	default:
		// Собственные команды и чужие события — не наша забота
		return nil
	}

	status := "success"
	if handleErr != nil {
		status = "error"
	}
	metrics.RecordEventConsumed("order", e.Type(), status)

	return handleErr
}

// Close закрывает все consumers.
func (c *Consumer) Close() error {
	var firstErr error
	for _, consumer := range []*kafka.Consumer{c.payments, c.inventory, c.shipping} {
		if err := consumer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Package saga содержит потребитель команд саги Inventory Service.
package saga

import (
	"context"
	"errors"
	"fmt"

	"example.com/order-saga/pkg/events"
	"example.com/order-saga/pkg/kafka"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/services/inventory/internal/service"
)

// maxHandlerRetries — количество повторов обработки события перед отправкой в DLQ.
const maxHandlerRetries = 3

// Consumer слушает топик inventory и выполняет команды inventory_requested.
type Consumer struct {
	inventory *kafka.Consumer
	svc       service.InventoryService
}

// NewConsumer создаёт потребитель команд Inventory Service.
// dlq может быть nil — тогда необрабатываемые сообщения только логируются.
func NewConsumer(cfg kafka.Config, groupID string, svc service.InventoryService, dlq *kafka.Producer) (*Consumer, error) {
	inventory, err := kafka.NewConsumer(cfg, events.TopicInventory, groupID)
	if err != nil {
		return nil, fmt.Errorf("consumer inventory: %w", err)
	}

	if dlq != nil {
		inventory.SetDLQProducer(dlq)
	}

	return &Consumer{
		inventory: inventory,
		svc:       svc,
	}, nil
}

// Run запускает чтение топика. Блокирует до отмены контекста.
func (c *Consumer) Run(ctx context.Context) {
	if err := c.inventory.ConsumeWithRetry(ctx, c.dispatch, maxHandlerRetries); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Str("topic", events.TopicInventory).Msg("Consumer остановился с ошибкой")
	}
}

// dispatch разбирает событие и выполняет команду аллокации.
// Собственные события (inventory_allocated, inventory_released) пропускаются.
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

	requested, ok := e.(*events.InventoryRequested)
	if !ok {
		return nil
	}

	_, handleErr := c.svc.AllocateInventory(ctx, requested.OrderID, requested.Saga(), requested.Items)

	status := "success"
	if handleErr != nil {
		status = "error"
	}
	metrics.RecordEventConsumed("inventory", e.Type(), status)

	return handleErr
}

// Close закрывает consumer.
func (c *Consumer) Close() error {
	return c.inventory.Close()
}

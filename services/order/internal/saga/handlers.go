package saga

import (
	"context"
	"errors"

	"example.com/order-saga/pkg/events"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/order/internal/domain"
	"example.com/order-saga/services/order/internal/repository"
)

// Handlers — обработчики событий саги на стороне Order Service.
// Каждый обработчик идемпотентен: повторное событие наблюдает текущий
// статус заказа и ничего не делает, если переход уже выполнен.
type Handlers struct {
	orders repository.OrderRepository
	sagas  Repository
}

// NewHandlers создаёт обработчики событий Order Service.
func NewHandlers(orders repository.OrderRepository, sagas Repository) *Handlers {
	return &Handlers{
		orders: orders,
		sagas:  sagas,
	}
}

// HandlePaymentProcessed обрабатывает результат оплаты.
// Успех: PENDING_PAYMENT -> PAYMENT_CONFIRMED -> PENDING_INVENTORY,
// публикуется inventory_requested. Провал: заказ в FAILED, сага завершается.
func (h *Handlers) HandlePaymentProcessed(ctx context.Context, e *events.PaymentProcessed) error {
	log := logger.FromContext(ctx)

	order, err := h.orders.GetByID(ctx, e.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Заказ удалён или никогда не существовал: логируем и подтверждаем
			log.Warn().Str("order_id", e.OrderID).Msg("payment_processed для неизвестного заказа, событие отброшено")
			return nil
		}
		return err
	}

	if !e.Success {
		if err := order.Fail(domain.MetaPaymentFailureReason, e.Message); err != nil {
			// Переход уже выполнен или невозможен — дубликат или гонка с отменой
			log.Debug().
				Str("order_id", order.ID).
				Str("status", string(order.Status)).
				Msg("payment_processed(failure) пропущен: переход недопустим")
			return nil
		}

		failed := StatusFailed
		sagaEnded, err := h.applyUpdate(ctx, order, &failed, e, nil)
		if err != nil {
			return err
		}

		if sagaEnded {
			metrics.RecordSagaOutcome("failed")
		}
		log.Info().
			Str("order_id", order.ID).
			Str("reason", e.Message).
			Msg("Оплата отклонена, сага завершена с провалом")
		return nil
	}

	if err := order.ConfirmPayment(e.PaymentID); err != nil {
		// Заказ уже ушёл дальше (дубликат) или отменён (гонка из S4)
		log.Debug().
			Str("order_id", order.ID).
			Str("status", string(order.Status)).
			Msg("payment_processed(success) пропущен: переход недопустим")
		return nil
	}

	// Следующий шаг саги: команда на резервирование товаров
	evInventory := events.InventoryRequested{
		Header:  events.NewHeader(events.TypeInventoryRequested, e.Saga()),
		OrderID: order.ID,
		Items:   order.ItemsMap(),
	}
	if err := order.RequestInventory(); err != nil {
		return err
	}

	if _, err := h.applyUpdate(ctx, order, nil, e, []events.Event{evInventory}); err != nil {
		return err
	}

	metrics.RecordEventPublished("order", events.TypeInventoryRequested)
	log.Info().
		Str("order_id", order.ID).
		Str("payment_id", e.PaymentID).
		Msg("Оплата подтверждена, запрошено резервирование товаров")
	return nil
}

// HandleInventoryAllocated обрабатывает результат резервирования.
// Успех: заказ в INVENTORY_CONFIRMED, сага завершена успешно.
// Провал: заказ в FAILED, сага провалена; оплата уже прошла,
// поэтому публикуется payment_refund_requested (компенсация).
func (h *Handlers) HandleInventoryAllocated(ctx context.Context, e *events.InventoryAllocated) error {
	log := logger.FromContext(ctx)

	order, err := h.orders.GetByID(ctx, e.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			log.Warn().Str("order_id", e.OrderID).Msg("inventory_allocated для неизвестного заказа, событие отброшено")
			return nil
		}
		return err
	}

	if e.Success {
		if err := order.ConfirmInventory(e.AllocatedItems); err != nil {
			log.Debug().
				Str("order_id", order.ID).
				Str("status", string(order.Status)).
				Msg("inventory_allocated(success) пропущен: переход недопустим")
			return nil
		}

		completed := StatusCompleted
		sagaEnded, err := h.applyUpdate(ctx, order, &completed, e, nil)
		if err != nil {
			return err
		}

		if sagaEnded {
			metrics.RecordSagaOutcome("completed")
		}
		log.Info().
			Str("order_id", order.ID).
			Msg("Товары зарезервированы, сага завершена успешно")
		return nil
	}

	if err := order.Fail(domain.MetaInventoryFailure, e.Message); err != nil {
		log.Debug().
			Str("order_id", order.ID).
			Str("status", string(order.Status)).
			Msg("inventory_allocated(failure) пропущен: переход недопустим")
		return nil
	}

	// Компенсация: оплата уже прошла (заказ был в PENDING_INVENTORY),
	// просим Payment Service вернуть деньги.
	evRefund := events.PaymentRefundRequested{
		Header:  events.NewHeader(events.TypePaymentRefundRequested, e.Saga()),
		OrderID: order.ID,
		Amount:  order.TotalAmount,
		Reason:  e.Message,
	}
	if paymentID, ok := order.Metadata[domain.MetaPaymentID].(string); ok && paymentID != "" {
		evRefund.PaymentID = &paymentID
	}

	failed := StatusFailed
	sagaEnded, err := h.applyUpdate(ctx, order, &failed, e, []events.Event{evRefund})
	if err != nil {
		return err
	}

	metrics.RecordEventPublished("order", events.TypePaymentRefundRequested)
	if sagaEnded {
		metrics.RecordSagaOutcome("failed")
	}
	log.Info().
		Str("order_id", order.ID).
		Str("reason", e.Message).
		Msg("Резервирование провалилось, запрошен возврат оплаты")
	return nil
}

// HandlePaymentRefunded фиксирует возврат оплаты в журнале саги.
// Статус заказа не меняется: он уже FAILED.
func (h *Handlers) HandlePaymentRefunded(ctx context.Context, e *events.PaymentRefunded) error {
	log := logger.FromContext(ctx)

	order, err := h.orders.GetByID(ctx, e.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			log.Warn().Str("order_id", e.OrderID).Msg("payment_refunded для неизвестного заказа, событие отброшено")
			return nil
		}
		return err
	}

	if _, err := h.applyUpdate(ctx, order, nil, e, nil); err != nil {
		return err
	}

	log.Info().
		Str("order_id", order.ID).
		Str("payment_id", e.PaymentID).
		Float64("amount", e.Amount).
		Msg("Возврат оплаты зафиксирован в журнале саги")
	return nil
}

// HandleOrderShipped обрабатывает сигнал внешней системы доставки.
// INVENTORY_CONFIRMED -> SHIPPED, в metadata сохраняется tracking_number.
func (h *Handlers) HandleOrderShipped(ctx context.Context, e *events.OrderShipped) error {
	log := logger.FromContext(ctx)

	order, err := h.orders.GetByID(ctx, e.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			log.Warn().Str("order_id", e.OrderID).Msg("order_shipped для неизвестного заказа, событие отброшено")
			return nil
		}
		return err
	}

	if err := order.Ship(e.TrackingNumber); err != nil {
		log.Debug().
			Str("order_id", order.ID).
			Str("status", string(order.Status)).
			Msg("order_shipped пропущен: переход недопустим")
		return nil
	}

	if _, err := h.applyUpdate(ctx, order, nil, e, nil); err != nil {
		return err
	}

	log.Info().
		Str("order_id", order.ID).
		Str("tracking_number", e.TrackingNumber).
		Msg("Заказ отгружен")
	return nil
}

// applyUpdate атомарно сохраняет заказ, пишет входящее событие в журнал
// и кладёт исходящие события в outbox. Возвращает true, если сага
// завершена этим вызовом.
func (h *Handlers) applyUpdate(ctx context.Context, order *domain.Order, endStatus *Status, incoming events.Event, outgoing []events.Event) (bool, error) {
	sagaID := ""
	if order.SagaID != nil {
		sagaID = *order.SagaID
	}

	var sagaEvents []*Event
	var records []*outbox.Outbox

	if sagaID != "" {
		se, err := FromEnvelope(sagaID, incoming)
		if err != nil {
			return false, err
		}
		sagaEvents = append(sagaEvents, se)
	}

	for _, e := range outgoing {
		if sagaID != "" {
			se, err := FromEnvelope(sagaID, e)
			if err != nil {
				return false, err
			}
			sagaEvents = append(sagaEvents, se)
		}

		rec, err := outbox.FromEvent(outbox.AggregateOrder, order.ID, e)
		if err != nil {
			return false, err
		}
		records = append(records, rec)
	}

	// Сагу завершаем только если она есть
	if sagaID == "" {
		endStatus = nil
	}

	return h.sagas.UpdateOrderWithSaga(ctx, order, endStatus, sagaEvents, records)
}


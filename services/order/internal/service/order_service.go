// Package service содержит бизнес-логику Order Service.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/order-saga/pkg/events"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/order/internal/domain"
	"example.com/order-saga/services/order/internal/repository"
	"example.com/order-saga/services/order/internal/saga"
)

// OrderService определяет интерфейс бизнес-логики заказов.
type OrderService interface {
	// CreateOrder создаёт заказ и запускает сагу.
	// Атомарно: заказ, сага, журнал (order_created, payment_requested)
	// и записи outbox пишутся одной транзакцией.
	CreateOrder(ctx context.Context, customerID string, items []domain.OrderItem) (*domain.Order, error)

	// GetOrder возвращает заказ по ID.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// GetSagaHistory возвращает события саги заказа в хронологическом порядке.
	// Для заказа без саги возвращает пустой список.
	GetSagaHistory(ctx context.Context, order *domain.Order) ([]*saga.Event, error)

	// GetCustomerOrders возвращает заказы покупателя, новые первыми.
	GetCustomerOrders(ctx context.Context, customerID string) ([]*domain.Order, error)

	// CancelOrder отменяет заказ. Повторная отмена — успех без событий.
	CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error)
}

// orderService — реализация OrderService.
type orderService struct {
	orders repository.OrderRepository
	sagas  saga.Repository
}

// NewOrderService создаёт новый сервис заказов.
func NewOrderService(orders repository.OrderRepository, sagas saga.Repository) OrderService {
	return &orderService{
		orders: orders,
		sagas:  sagas,
	}
}

// CreateOrder создаёт заказ и запускает сагу оформления.
func (s *orderService) CreateOrder(ctx context.Context, customerID string, items []domain.OrderItem) (*domain.Order, error) {
	log := logger.FromContext(ctx)

	now := time.Now().UTC()
	sagaID := uuid.NewString()

	order := &domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Items:      items,
		Status:     domain.OrderStatusCreated,
		SagaID:     &sagaID,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	if err := order.Validate(); err != nil {
		log.Warn().Err(err).Str("customer_id", customerID).Msg("Ошибка валидации заказа")
		return nil, err
	}
	order.CalculateTotal()

	// Событие order_created с полным составом заказа
	createdItems := make(map[string]events.OrderItem, len(order.Items))
	for i := range order.Items {
		item := &order.Items[i]
		createdItems[item.ProductID] = events.OrderItem{
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	evCreated := events.OrderCreated{
		Header:      events.NewHeader(events.TypeOrderCreated, sagaID),
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		Items:       createdItems,
	}

	// Переход CREATED -> PENDING_PAYMENT и команда на оплату
	if err := order.RequestPayment(); err != nil {
		return nil, err
	}
	evPayment := events.PaymentRequested{
		Header:     events.NewHeader(events.TypePaymentRequested, sagaID),
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Amount:     order.TotalAmount,
	}

	sg := &saga.Saga{
		ID:        sagaID,
		OrderID:   order.ID,
		Status:    saga.StatusStarted,
		StartedAt: now,
	}

	// Журнал саги: order_created строго раньше payment_requested
	sagaEvents, records, err := buildSagaBatch(sagaID, order.ID, evCreated, evPayment)
	if err != nil {
		return nil, err
	}

	if err := s.sagas.CreateOrderWithSaga(ctx, order, sg, sagaEvents, records); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("Ошибка создания заказа с сагой")
		return nil, fmt.Errorf("ошибка создания заказа: %w", err)
	}

	metrics.RecordEventPublished("order", events.TypeOrderCreated)
	metrics.RecordEventPublished("order", events.TypePaymentRequested)

	log.Info().
		Str("order_id", order.ID).
		Str("saga_id", sagaID).
		Str("customer_id", customerID).
		Float64("total_amount", order.TotalAmount).
		Int("items_count", len(order.Items)).
		Msg("Заказ создан, сага запущена")

	return order, nil
}

// GetOrder возвращает заказ по ID.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// GetSagaHistory возвращает события саги заказа.
func (s *orderService) GetSagaHistory(ctx context.Context, order *domain.Order) ([]*saga.Event, error) {
	if order.SagaID == nil {
		return []*saga.Event{}, nil
	}
	return s.sagas.GetEvents(ctx, *order.SagaID)
}

// GetCustomerOrders возвращает заказы покупателя.
func (s *orderService) GetCustomerOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return s.orders.ListByCustomerID(ctx, customerID)
}

// CancelOrder отменяет заказ и завершает сагу как проваленную.
func (s *orderService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	log := logger.FromContext(ctx)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := order.Cancel(reason); err != nil {
		// Повторная отмена: тот же результат, без второго события
		if errors.Is(err, domain.ErrOrderAlreadyCancelled) {
			log.Debug().Str("order_id", orderID).Msg("Заказ уже отменён, повторная отмена — no-op")
			return order, nil
		}
		return nil, err
	}

	sagaID := ""
	if order.SagaID != nil {
		sagaID = *order.SagaID
	}

	evCancelled := events.OrderCancelled{
		Header:  events.NewHeader(events.TypeOrderCancelled, sagaID),
		OrderID: order.ID,
		Reason:  reason,
	}

	sagaEvents, records, err := buildSagaBatch(sagaID, order.ID, evCancelled)
	if err != nil {
		return nil, err
	}

	// Отмена завершает сагу как проваленную (если сага есть)
	var endStatus *saga.Status
	if sagaID != "" {
		failed := saga.StatusFailed
		endStatus = &failed
	}

	sagaEnded, err := s.sagas.UpdateOrderWithSaga(ctx, order, endStatus, sagaEvents, records)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Ошибка отмены заказа")
		return nil, fmt.Errorf("ошибка отмены заказа: %w", err)
	}

	metrics.RecordEventPublished("order", events.TypeOrderCancelled)
	// Отмена после финала саги (например COMPLETED) исход не перезаписывает
	if sagaEnded {
		metrics.RecordSagaOutcome("failed")
	}

	log.Info().
		Str("order_id", orderID).
		Str("reason", reason).
		Msg("Заказ отменён")

	return order, nil
}

// buildSagaBatch строит записи журнала и outbox для набора событий.
// При пустом sagaID журнал не пишется (событие уходит только в outbox).
func buildSagaBatch(sagaID, orderID string, evs ...events.Event) ([]*saga.Event, []*outbox.Outbox, error) {
	sagaEvents := make([]*saga.Event, 0, len(evs))
	records := make([]*outbox.Outbox, 0, len(evs))

	for _, e := range evs {
		if sagaID != "" {
			se, err := saga.FromEnvelope(sagaID, e)
			if err != nil {
				return nil, nil, err
			}
			sagaEvents = append(sagaEvents, se)
		}

		rec, err := outbox.FromEvent(outbox.AggregateOrder, orderID, e)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}

	return sagaEvents, records, nil
}

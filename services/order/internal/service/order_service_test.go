package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/order-saga/pkg/events"
	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/order/internal/domain"
	"example.com/order-saga/services/order/internal/saga"
)

// =============================================================================
// Моки
// =============================================================================

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepo) ListByCustomerID(ctx context.Context, customerID string) ([]*domain.Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

type mockSagaRepo struct {
	mock.Mock
}

func (m *mockSagaRepo) CreateOrderWithSaga(ctx context.Context, order *domain.Order, sg *saga.Saga, sagaEvents []*saga.Event, records []*outbox.Outbox) error {
	args := m.Called(ctx, order, sg, sagaEvents, records)
	return args.Error(0)
}

func (m *mockSagaRepo) UpdateOrderWithSaga(ctx context.Context, order *domain.Order, endStatus *saga.Status, sagaEvents []*saga.Event, records []*outbox.Outbox) (bool, error) {
	args := m.Called(ctx, order, endStatus, sagaEvents, records)
	return args.Bool(0), args.Error(1)
}

func (m *mockSagaRepo) GetSaga(ctx context.Context, sagaID string) (*saga.Saga, error) {
	args := m.Called(ctx, sagaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saga.Saga), args.Error(1)
}

func (m *mockSagaRepo) GetSagaByOrderID(ctx context.Context, orderID string) (*saga.Saga, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saga.Saga), args.Error(1)
}

func (m *mockSagaRepo) GetEvents(ctx context.Context, sagaID string) ([]*saga.Event, error) {
	args := m.Called(ctx, sagaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*saga.Event), args.Error(1)
}

// =============================================================================
// CreateOrder
// =============================================================================

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	orders := new(mockOrderRepo)
	sagas := new(mockSagaRepo)
	svc := NewOrderService(orders, sagas)

	items := []domain.OrderItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: 10.0},
		{ProductID: "p2", Quantity: 1, UnitPrice: 20.0},
	}

	var gotSaga *saga.Saga
	var gotEvents []*saga.Event
	var gotRecords []*outbox.Outbox
	sagas.On("CreateOrderWithSaga", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotSaga = args.Get(2).(*saga.Saga)
			gotEvents = args.Get(3).([]*saga.Event)
			gotRecords = args.Get(4).([]*outbox.Outbox)
		}).
		Return(nil)

	order, err := svc.CreateOrder(ctx, "c1", items)
	require.NoError(t, err)

	// Заказ создан и переведён в ожидание оплаты
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "c1", order.CustomerID)
	assert.Equal(t, domain.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, 40.0, order.TotalAmount)
	require.NotNil(t, order.SagaID)

	// Сага запущена и привязана к заказу
	require.NotNil(t, gotSaga)
	assert.Equal(t, *order.SagaID, gotSaga.ID)
	assert.Equal(t, order.ID, gotSaga.OrderID)
	assert.Equal(t, saga.StatusStarted, gotSaga.Status)

	// Журнал: order_created строго раньше payment_requested
	require.Len(t, gotEvents, 2)
	assert.Equal(t, events.TypeOrderCreated, gotEvents[0].EventType)
	assert.Equal(t, events.TypePaymentRequested, gotEvents[1].EventType)

	// Оба события уходят через outbox
	require.Len(t, gotRecords, 2)
	assert.Equal(t, events.TypeOrderCreated, gotRecords[0].EventType)
	assert.Equal(t, events.TypePaymentRequested, gotRecords[1].EventType)
	assert.Equal(t, events.TopicOrders, gotRecords[0].Topic)
	assert.Equal(t, events.TopicPayments, gotRecords[1].Topic)

	// Ключ партиционирования — saga_id: события одной саги идут по порядку
	assert.Equal(t, *order.SagaID, gotRecords[0].MessageKey)
	assert.Equal(t, *order.SagaID, gotRecords[1].MessageKey)
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewOrderService(new(mockOrderRepo), new(mockSagaRepo))

	tests := []struct {
		name       string
		customerID string
		items      []domain.OrderItem
		wantErr    error
	}{
		{
			name:       "без позиций",
			customerID: "c1",
			items:      nil,
			wantErr:    domain.ErrEmptyOrderItems,
		},
		{
			name:       "без покупателя",
			customerID: "",
			items:      []domain.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: 5}},
			wantErr:    domain.ErrInvalidCustomerID,
		},
		{
			name:       "нулевое количество",
			customerID: "c1",
			items:      []domain.OrderItem{{ProductID: "p1", Quantity: 0, UnitPrice: 5}},
			wantErr:    domain.ErrInvalidQuantity,
		},
		{
			name:       "отрицательная цена",
			customerID: "c1",
			items:      []domain.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: -1}},
			wantErr:    domain.ErrInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, tt.customerID, tt.items)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// =============================================================================
// CancelOrder
// =============================================================================

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	orders := new(mockOrderRepo)
	sagas := new(mockSagaRepo)
	svc := NewOrderService(orders, sagas)

	sagaID := "saga-1"
	order := &domain.Order{
		ID:         "order-1",
		CustomerID: "c1",
		Status:     domain.OrderStatusPendingPayment,
		SagaID:     &sagaID,
		Items:      []domain.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: 10}},
	}
	orders.On("GetByID", ctx, "order-1").Return(order, nil)

	failed := saga.StatusFailed
	var gotRecords []*outbox.Outbox
	sagas.On("UpdateOrderWithSaga", ctx, order, &failed, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotRecords = args.Get(4).([]*outbox.Outbox)
		}).
		Return(true, nil)

	failedBefore := testutil.ToFloat64(metrics.SagasCompleted.WithLabelValues("failed"))

	cancelled, err := svc.CancelOrder(ctx, "order-1", "buyer-remorse")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, "buyer-remorse", cancelled.Metadata[domain.MetaCancellationReason])

	require.Len(t, gotRecords, 1)
	assert.Equal(t, events.TypeOrderCancelled, gotRecords[0].EventType)

	// Сага завершилась этим вызовом — провал учтён в метриках
	failedAfter := testutil.ToFloat64(metrics.SagasCompleted.WithLabelValues("failed"))
	assert.Equal(t, failedBefore+1, failedAfter)
	sagas.AssertExpectations(t)
}

func TestCancelOrder_SagaAlreadyEnded(t *testing.T) {
	// Отмена заказа INVENTORY_CONFIRMED: сага уже COMPLETED,
	// её исход не перезаписывается и провал в метрики не попадает.
	ctx := context.Background()
	orders := new(mockOrderRepo)
	sagas := new(mockSagaRepo)
	svc := NewOrderService(orders, sagas)

	sagaID := "saga-1"
	order := &domain.Order{
		ID:         "order-1",
		CustomerID: "c1",
		Status:     domain.OrderStatusInventoryConfirmed,
		SagaID:     &sagaID,
		Items:      []domain.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: 10}},
	}
	orders.On("GetByID", ctx, "order-1").Return(order, nil)

	failed := saga.StatusFailed
	sagas.On("UpdateOrderWithSaga", ctx, order, &failed, mock.Anything, mock.Anything).
		Return(false, nil)

	failedBefore := testutil.ToFloat64(metrics.SagasCompleted.WithLabelValues("failed"))

	cancelled, err := svc.CancelOrder(ctx, "order-1", "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	failedAfter := testutil.ToFloat64(metrics.SagasCompleted.WithLabelValues("failed"))
	assert.Equal(t, failedBefore, failedAfter)
	sagas.AssertExpectations(t)
}

func TestCancelOrder_AlreadyCancelled(t *testing.T) {
	// Повторная отмена — успех без второго события
	ctx := context.Background()
	orders := new(mockOrderRepo)
	sagas := new(mockSagaRepo)
	svc := NewOrderService(orders, sagas)

	order := &domain.Order{
		ID:         "order-1",
		CustomerID: "c1",
		Status:     domain.OrderStatusCancelled,
		Metadata:   map[string]any{domain.MetaCancellationReason: "first"},
	}
	orders.On("GetByID", ctx, "order-1").Return(order, nil)

	cancelled, err := svc.CancelOrder(ctx, "order-1", "second")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, "first", cancelled.Metadata[domain.MetaCancellationReason])
	sagas.AssertNotCalled(t, "UpdateOrderWithSaga")
}

func TestCancelOrder_Shipped(t *testing.T) {
	ctx := context.Background()
	orders := new(mockOrderRepo)
	sagas := new(mockSagaRepo)
	svc := NewOrderService(orders, sagas)

	order := &domain.Order{
		ID:         "order-1",
		CustomerID: "c1",
		Status:     domain.OrderStatusShipped,
	}
	orders.On("GetByID", ctx, "order-1").Return(order, nil)

	_, err := svc.CancelOrder(ctx, "order-1", "too late")
	assert.ErrorIs(t, err, domain.ErrOrderShippedOrDelivered)
	sagas.AssertNotCalled(t, "UpdateOrderWithSaga")
}

func TestCancelOrder_NotFound(t *testing.T) {
	ctx := context.Background()
	orders := new(mockOrderRepo)
	sagas := new(mockSagaRepo)
	svc := NewOrderService(orders, sagas)

	orders.On("GetByID", ctx, "missing").Return(nil, domain.ErrOrderNotFound)

	_, err := svc.CancelOrder(ctx, "missing", "reason")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// =============================================================================
// GetSagaHistory
// =============================================================================

func TestGetSagaHistory_NoSaga(t *testing.T) {
	ctx := context.Background()
	sagas := new(mockSagaRepo)
	svc := NewOrderService(new(mockOrderRepo), sagas)

	history, err := svc.GetSagaHistory(ctx, &domain.Order{ID: "order-1"})
	require.NoError(t, err)
	assert.Empty(t, history)
	sagas.AssertNotCalled(t, "GetEvents")
}

func TestGetSagaHistory(t *testing.T) {
	ctx := context.Background()
	sagas := new(mockSagaRepo)
	svc := NewOrderService(new(mockOrderRepo), sagas)

	sagaID := "saga-1"
	stored := []*saga.Event{
		{SagaID: sagaID, EventType: events.TypeOrderCreated},
		{SagaID: sagaID, EventType: events.TypePaymentRequested},
	}
	sagas.On("GetEvents", ctx, sagaID).Return(stored, nil)

	history, err := svc.GetSagaHistory(ctx, &domain.Order{ID: "order-1", SagaID: &sagaID})
	require.NoError(t, err)
	assert.Equal(t, stored, history)
}

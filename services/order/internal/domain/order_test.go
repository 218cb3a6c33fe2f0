package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(status OrderStatus) *Order {
	return &Order{
		ID:         "order-1",
		CustomerID: "c1",
		Status:     status,
		Items: []OrderItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: 10.0},
			{ProductID: "p2", Quantity: 1, UnitPrice: 20.0},
		},
	}
}

func TestOrder_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Order)
		wantErr error
	}{
		{
			name:    "валидный заказ",
			mutate:  func(o *Order) {},
			wantErr: nil,
		},
		{
			name:    "пустой customer_id",
			mutate:  func(o *Order) { o.CustomerID = "  " },
			wantErr: ErrInvalidCustomerID,
		},
		{
			name:    "без позиций",
			mutate:  func(o *Order) { o.Items = nil },
			wantErr: ErrEmptyOrderItems,
		},
		{
			name:    "пустой product_id",
			mutate:  func(o *Order) { o.Items[0].ProductID = "" },
			wantErr: ErrInvalidProductID,
		},
		{
			name:    "нулевое количество",
			mutate:  func(o *Order) { o.Items[1].Quantity = 0 },
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "отрицательная цена",
			mutate:  func(o *Order) { o.Items[0].UnitPrice = -1 },
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "нулевая цена допустима",
			mutate:  func(o *Order) { o.Items[0].UnitPrice = 0 },
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := newTestOrder(OrderStatusCreated)
			tt.mutate(order)

			err := order.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrder_CalculateTotal(t *testing.T) {
	order := newTestOrder(OrderStatusCreated)
	order.CalculateTotal()

	assert.Equal(t, 40.0, order.TotalAmount)
}

func TestOrder_ItemsMap(t *testing.T) {
	order := newTestOrder(OrderStatusCreated)
	order.Items = append(order.Items, OrderItem{ProductID: "p1", Quantity: 3, UnitPrice: 10.0})

	items := order.ItemsMap()

	// Дубли товара складываются
	assert.Equal(t, map[string]int{"p1": 5, "p2": 1}, items)
}

func TestOrder_HappyPathTransitions(t *testing.T) {
	order := newTestOrder(OrderStatusCreated)

	require.NoError(t, order.RequestPayment())
	assert.Equal(t, OrderStatusPendingPayment, order.Status)

	require.NoError(t, order.ConfirmPayment("pay-1"))
	assert.Equal(t, OrderStatusPaymentConfirmed, order.Status)
	assert.Equal(t, "pay-1", order.Metadata[MetaPaymentID])

	require.NoError(t, order.RequestInventory())
	assert.Equal(t, OrderStatusPendingInventory, order.Status)

	require.NoError(t, order.ConfirmInventory(map[string]int{"p1": 2, "p2": 1}))
	assert.Equal(t, OrderStatusInventoryConfirmed, order.Status)
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, order.Metadata[MetaAllocatedItems])

	require.NoError(t, order.Ship("TRK-1"))
	assert.Equal(t, OrderStatusShipped, order.Status)
	assert.Equal(t, "TRK-1", order.Metadata[MetaTrackingNumber])

	require.NoError(t, order.Deliver())
	assert.Equal(t, OrderStatusDelivered, order.Status)
	assert.True(t, order.Status.IsTerminal())
}

func TestOrder_InvalidTransitions(t *testing.T) {
	t.Run("нельзя подтвердить оплату из CREATED", func(t *testing.T) {
		order := newTestOrder(OrderStatusCreated)
		err := order.ConfirmPayment("pay-1")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, OrderStatusCreated, order.Status)
	})

	t.Run("PaymentProcessed после отмены не возвращает заказ в работу", func(t *testing.T) {
		// Гонка из S4: отмена успела раньше ответа Payment Service
		order := newTestOrder(OrderStatusCancelled)
		err := order.ConfirmPayment("pay-1")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, OrderStatusCancelled, order.Status)
	})

	t.Run("нельзя провалить подтверждённый заказ", func(t *testing.T) {
		order := newTestOrder(OrderStatusInventoryConfirmed)
		err := order.Fail(MetaPaymentFailureReason, "late failure")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestOrder_Fail(t *testing.T) {
	t.Run("провал оплаты", func(t *testing.T) {
		order := newTestOrder(OrderStatusPendingPayment)
		require.NoError(t, order.Fail(MetaPaymentFailureReason, "Insufficient funds"))

		assert.Equal(t, OrderStatusFailed, order.Status)
		assert.Equal(t, "Insufficient funds", order.Metadata[MetaPaymentFailureReason])
	})

	t.Run("провал резервирования", func(t *testing.T) {
		order := newTestOrder(OrderStatusPendingInventory)
		require.NoError(t, order.Fail(MetaInventoryFailure, "Insufficient quantity for product p1"))

		assert.Equal(t, OrderStatusFailed, order.Status)
	})
}

func TestOrder_Cancel(t *testing.T) {
	t.Run("отмена до оплаты", func(t *testing.T) {
		order := newTestOrder(OrderStatusPendingPayment)
		require.NoError(t, order.Cancel("buyer-remorse"))

		assert.Equal(t, OrderStatusCancelled, order.Status)
		assert.Equal(t, "buyer-remorse", order.Metadata[MetaCancellationReason])
	})

	t.Run("повторная отмена идемпотентна", func(t *testing.T) {
		order := newTestOrder(OrderStatusPendingPayment)
		require.NoError(t, order.Cancel("first"))

		err := order.Cancel("second")
		assert.ErrorIs(t, err, ErrOrderAlreadyCancelled)
		assert.Equal(t, OrderStatusCancelled, order.Status)
		// Причина первой отмены сохраняется
		assert.Equal(t, "first", order.Metadata[MetaCancellationReason])
	})

	t.Run("отгруженный заказ не отменить", func(t *testing.T) {
		order := newTestOrder(OrderStatusShipped)
		err := order.Cancel("too late")

		assert.ErrorIs(t, err, ErrOrderShippedOrDelivered)
		assert.EqualError(t, err, "Cannot cancel an order that has been shipped or delivered")
		assert.Equal(t, OrderStatusShipped, order.Status)
	})

	t.Run("доставленный заказ не отменить", func(t *testing.T) {
		order := newTestOrder(OrderStatusDelivered)
		err := order.Cancel("too late")

		assert.ErrorIs(t, err, ErrOrderShippedOrDelivered)
	})
}

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/order-saga/services/order/internal/domain"
)

// =====================================
// Тесты конвертеров OrderModel
// =====================================

func TestOrderModelRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	sagaID := "saga-1"

	order := &domain.Order{
		ID:          "order-1",
		CustomerID:  "c1",
		Status:      domain.OrderStatusPendingInventory,
		TotalAmount: 40.0,
		SagaID:      &sagaID,
		Metadata: map[string]any{
			"payment_id":      "pay-1",
			"tracking_number": "TRK-42",
			"attempt":         float64(2),
		},
		CreatedAt:  now,
		ModifiedAt: now,
		Items: []domain.OrderItem{
			{ID: 1, OrderID: "order-1", ProductID: "p1", Quantity: 2, UnitPrice: 10.0},
			{ID: 2, OrderID: "order-1", ProductID: "p2", Quantity: 1, UnitPrice: 20.0},
		},
	}

	restored := ModelFromDomain(order).toDomain()

	assert.Equal(t, order, restored)
}

func TestOrderModelRoundTrip_OptionalFieldsAbsent(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	order := &domain.Order{
		ID:          "order-2",
		CustomerID:  "c2",
		Status:      domain.OrderStatusCreated,
		TotalAmount: 10.0,
		CreatedAt:   now,
		ModifiedAt:  now,
		Items: []domain.OrderItem{
			{ID: 1, OrderID: "order-2", ProductID: "p1", Quantity: 1, UnitPrice: 10.0},
		},
	}

	model := ModelFromDomain(order)

	// Отсутствующие saga_id и metadata не превращаются в пустые значения
	require.Nil(t, model.SagaID)
	require.Nil(t, model.Metadata)

	restored := model.toDomain()
	assert.Nil(t, restored.SagaID)
	assert.Nil(t, restored.Metadata)
	assert.Equal(t, order, restored)
}

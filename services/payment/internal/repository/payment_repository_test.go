package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/order-saga/services/payment/internal/domain"
)

// =====================================
// Тесты конвертеров PaymentModel
// =====================================

func TestPaymentModelRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	sagaID := "saga-1"
	transactionID := "txn-abc"

	payment := &domain.Payment{
		ID:            "pay-1",
		OrderID:       "order-1",
		CustomerID:    "c1",
		Amount:        40.0,
		Currency:      "USD",
		Status:        domain.PaymentStatusCompleted,
		PaymentMethod: domain.MethodCreditCard,
		TransactionID: &transactionID,
		SagaID:        &sagaID,
		Metadata: map[string]any{
			"failure_reason": "Card declined",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	model, err := modelFromDomain(payment)
	require.NoError(t, err)

	restored, err := model.toDomain()
	require.NoError(t, err)

	assert.Equal(t, payment, restored)
}

func TestPaymentModelRoundTrip_OptionalFieldsAbsent(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	payment := &domain.Payment{
		ID:            "pay-2",
		OrderID:       "order-2",
		CustomerID:    "c2",
		Amount:        10.0,
		Currency:      "USD",
		Status:        domain.PaymentStatusPending,
		PaymentMethod: domain.MethodCreditCard,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	model, err := modelFromDomain(payment)
	require.NoError(t, err)

	// Отсутствующие transaction_id, saga_id и metadata остаются отсутствующими
	require.Nil(t, model.TransactionID)
	require.Nil(t, model.SagaID)
	require.Nil(t, model.Metadata)

	restored, err := model.toDomain()
	require.NoError(t, err)

	assert.Nil(t, restored.TransactionID)
	assert.Nil(t, restored.SagaID)
	assert.Nil(t, restored.Metadata)
	assert.Equal(t, payment, restored)
}

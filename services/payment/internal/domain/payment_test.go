package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	p := NewPayment("order-1", "c1", 40.0, "saga-1")

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "order-1", p.OrderID)
	assert.Equal(t, "c1", p.CustomerID)
	assert.Equal(t, 40.0, p.Amount)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, PaymentStatusPending, p.Status)
	assert.Equal(t, MethodCreditCard, p.PaymentMethod)
	assert.Nil(t, p.TransactionID)
	require.NotNil(t, p.SagaID)
	assert.Equal(t, "saga-1", *p.SagaID)
}

func TestNewPayment_WithoutSaga(t *testing.T) {
	p := NewPayment("order-1", "c1", 40.0, "")
	assert.Nil(t, p.SagaID)
}

func TestPayment_Complete(t *testing.T) {
	p := NewPayment("order-1", "c1", 40.0, "saga-1")
	p.StartProcessing()
	assert.Equal(t, PaymentStatusProcessing, p.Status)

	p.Complete("txn-123")

	assert.Equal(t, PaymentStatusCompleted, p.Status)
	require.NotNil(t, p.TransactionID)
	assert.Equal(t, "txn-123", *p.TransactionID)
	assert.True(t, p.Succeeded())
	assert.True(t, p.Status.IsTerminal())
}

func TestPayment_Fail(t *testing.T) {
	p := NewPayment("order-1", "c1", 40.0, "saga-1")
	p.StartProcessing()
	p.Fail("Card declined")

	assert.Equal(t, PaymentStatusFailed, p.Status)
	assert.Equal(t, "Card declined", p.Metadata[MetaFailureReason])
	assert.Nil(t, p.TransactionID)
	assert.False(t, p.Succeeded())
}

func TestPayment_Refund(t *testing.T) {
	p := NewPayment("order-1", "c1", 40.0, "saga-1")
	p.Complete("txn-123")

	require.NoError(t, p.Refund("inventory allocation failed"))

	assert.Equal(t, PaymentStatusRefunded, p.Status)
	assert.Equal(t, "inventory allocation failed", p.Metadata[MetaRefundReason])
	// transaction_id сохраняется: платёж исторически был завершён
	require.NotNil(t, p.TransactionID)
}

func TestPayment_Refund_OnlyCompleted(t *testing.T) {
	p := NewPayment("order-1", "c1", 40.0, "saga-1")
	p.Fail("Card declined")

	assert.ErrorIs(t, p.Refund("reason"), ErrPaymentNotRefundable)
	assert.Equal(t, PaymentStatusFailed, p.Status)
}

func TestPayment_Refund_Twice(t *testing.T) {
	p := NewPayment("order-1", "c1", 40.0, "saga-1")
	p.Complete("txn-123")
	require.NoError(t, p.Refund("first"))

	assert.ErrorIs(t, p.Refund("second"), ErrPaymentAlreadyRefunded)
	assert.Equal(t, "first", p.Metadata[MetaRefundReason])
}

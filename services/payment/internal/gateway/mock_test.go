package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGateway_AlwaysSucceeds(t *testing.T) {
	g := NewMockGateway(MockConfig{SuccessRate: 1.0, RefundSuccessRate: 1.0})

	result, err := g.ProcessPayment(context.Background(), "pay-1", 40.0, "c1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, strings.HasPrefix(result.TransactionID, "txn-"))
	assert.Equal(t, "Payment processed successfully", result.Message)
}

func TestMockGateway_AlwaysFails(t *testing.T) {
	g := NewMockGateway(MockConfig{SuccessRate: 0.0})

	result, err := g.ProcessPayment(context.Background(), "pay-1", 40.0, "c1")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.TransactionID)
	assert.Contains(t, failureReasons, result.Message)
}

func TestMockGateway_Refund(t *testing.T) {
	g := NewMockGateway(MockConfig{RefundSuccessRate: 1.0})

	result, err := g.RefundPayment(context.Background(), "txn-1", 40.0, "reason")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, strings.HasPrefix(result.RefundID, "ref-"))
}

func TestMockGateway_RefundRejected(t *testing.T) {
	g := NewMockGateway(MockConfig{RefundSuccessRate: 0.0})

	result, err := g.RefundPayment(context.Background(), "txn-1", 40.0, "reason")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "Failed to process refund: Transaction not found or already refunded", result.Message)
}

func TestMockGateway_ContextCancelled(t *testing.T) {
	g := NewMockGateway(MockConfig{SuccessRate: 1.0, Delay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.ProcessPayment(ctx, "pay-1", 40.0, "c1")
	assert.ErrorIs(t, err, context.Canceled)
}

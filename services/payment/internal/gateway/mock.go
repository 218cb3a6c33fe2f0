package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockConfig — настройки мокового шлюза.
type MockConfig struct {
	// SuccessRate — доля успешных платежей (0..1).
	SuccessRate float64

	// RefundSuccessRate — доля успешных возвратов (0..1).
	RefundSuccessRate float64

	// Delay — имитация сетевой задержки.
	Delay time.Duration
}

// DefaultMockConfig возвращает настройки по умолчанию.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		SuccessRate:       0.9,
		RefundSuccessRate: 0.95,
		Delay:             500 * time.Millisecond,
	}
}

// Причины отказа мокового шлюза.
var failureReasons = []string{
	"Insufficient funds",
	"Card declined",
	"Payment method not supported",
	"Gateway timeout",
	"Invalid card details",
}

// MockGateway — моковая реализация платёжного шлюза.
// В реальной системе здесь была бы интеграция с платёжным процессором.
type MockGateway struct {
	cfg MockConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewMockGateway создаёт моковый шлюз.
func NewMockGateway(cfg MockConfig) *MockGateway {
	return &MockGateway{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ProcessPayment имитирует проведение платежа: 90% успеха по умолчанию.
func (g *MockGateway) ProcessPayment(ctx context.Context, paymentID string, amount float64, customerID string) (*Result, error) {
	if err := g.sleep(ctx); err != nil {
		return nil, err
	}

	if g.roll() < g.cfg.SuccessRate {
		return &Result{
			Success:       true,
			TransactionID: "txn-" + uuid.NewString(),
			Message:       "Payment processed successfully",
		}, nil
	}

	return &Result{
		Success: false,
		Message: g.pickFailure(),
	}, nil
}

// RefundPayment имитирует возврат платежа: 95% успеха по умолчанию.
func (g *MockGateway) RefundPayment(ctx context.Context, transactionID string, amount float64, reason string) (*RefundResult, error) {
	if err := g.sleep(ctx); err != nil {
		return nil, err
	}

	if g.roll() < g.cfg.RefundSuccessRate {
		return &RefundResult{
			Success:  true,
			RefundID: "ref-" + uuid.NewString(),
			Message:  "Refund processed successfully",
		}, nil
	}

	return &RefundResult{
		Success: false,
		Message: "Failed to process refund: Transaction not found or already refunded",
	}, nil
}

// sleep имитирует сетевую задержку с учётом отмены контекста.
func (g *MockGateway) sleep(ctx context.Context) error {
	if g.cfg.Delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(g.cfg.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *MockGateway) roll() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Float64()
}

func (g *MockGateway) pickFailure() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return failureReasons[g.rnd.Intn(len(failureReasons))]
}

// Package gateway определяет порт платёжного шлюза и его реализации.
package gateway

import "context"

// Result — результат проведения платежа.
type Result struct {
	Success       bool
	TransactionID string // пустой при отказе
	Message       string
}

// RefundResult — результат возврата платежа.
type RefundResult struct {
	Success  bool
	RefundID string // пустой при отказе
	Message  string
}

// PaymentGateway — порт внешнего платёжного процессора.
// Вызовы ограничиваются таймаутом через context.
type PaymentGateway interface {
	// ProcessPayment проводит платёж.
	// Отказ платежа — не ошибка: возвращается Result с Success=false.
	// Ошибка возвращается только при сбое самого шлюза.
	ProcessPayment(ctx context.Context, paymentID string, amount float64, customerID string) (*Result, error)

	// RefundPayment возвращает средства по завершённой транзакции.
	RefundPayment(ctx context.Context, transactionID string, amount float64, reason string) (*RefundResult, error)
}

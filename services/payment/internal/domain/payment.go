// Package domain содержит доменную модель Payment Service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus — статус платежа. Сериализуется именем (верхний регистр).
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// IsTerminal сообщает, завершён ли платёж (успехом, отказом или возвратом).
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// PaymentMethod — способ оплаты.
type PaymentMethod string

const (
	MethodCreditCard     PaymentMethod = "CREDIT_CARD"
	MethodDebitCard      PaymentMethod = "DEBIT_CARD"
	MethodPayPal         PaymentMethod = "PAYPAL"
	MethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
	MethodCryptocurrency PaymentMethod = "CRYPTOCURRENCY"
)

// Ключи metadata платежа.
const (
	MetaFailureReason = "failure_reason"
	MetaRefundReason  = "refund_reason"
)

// Payment — агрегат платежа.
// transaction_id устанавливается только при успешном завершении.
type Payment struct {
	ID            string
	OrderID       string
	CustomerID    string
	Amount        float64
	Currency      string
	Status        PaymentStatus
	PaymentMethod PaymentMethod
	TransactionID *string
	SagaID        *string
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPayment создаёт платёж в статусе PENDING.
// sagaID может быть пустым — платёж вне саги.
func NewPayment(orderID, customerID string, amount float64, sagaID string) *Payment {
	now := time.Now().UTC()
	p := &Payment{
		ID:            uuid.NewString(),
		OrderID:       orderID,
		CustomerID:    customerID,
		Amount:        amount,
		Currency:      "USD",
		Status:        PaymentStatusPending,
		PaymentMethod: MethodCreditCard,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if sagaID != "" {
		p.SagaID = &sagaID
	}
	return p
}

// StartProcessing переводит платёж в PROCESSING.
func (p *Payment) StartProcessing() {
	p.Status = PaymentStatusProcessing
	p.UpdatedAt = time.Now().UTC()
}

// Complete завершает платёж успехом и фиксирует transaction_id.
func (p *Payment) Complete(transactionID string) {
	p.TransactionID = &transactionID
	p.Status = PaymentStatusCompleted
	p.UpdatedAt = time.Now().UTC()
}

// Fail завершает платёж отказом и пишет причину в metadata.
func (p *Payment) Fail(reason string) {
	p.Status = PaymentStatusFailed
	p.setMeta(MetaFailureReason, reason)
	p.UpdatedAt = time.Now().UTC()
}

// Refund возвращает платёж. Допустим только из COMPLETED.
func (p *Payment) Refund(reason string) error {
	if p.Status == PaymentStatusRefunded {
		return ErrPaymentAlreadyRefunded
	}
	if p.Status != PaymentStatusCompleted {
		return ErrPaymentNotRefundable
	}

	p.Status = PaymentStatusRefunded
	if reason != "" {
		p.setMeta(MetaRefundReason, reason)
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Succeeded сообщает, завершился ли платёж успехом.
func (p *Payment) Succeeded() bool {
	return p.Status == PaymentStatusCompleted
}

func (p *Payment) setMeta(key string, value any) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata[key] = value
}

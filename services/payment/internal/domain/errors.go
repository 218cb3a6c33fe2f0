package domain

import "errors"

// Доменные ошибки Payment Service.
var (
	// ErrPaymentNotFound — платёж не найден.
	ErrPaymentNotFound = errors.New("платёж не найден")

	// ErrPaymentNotRefundable — возврат возможен только для завершённого платежа.
	ErrPaymentNotRefundable = errors.New("возврат возможен только для завершённого платежа")

	// ErrPaymentAlreadyRefunded — платёж уже возвращён.
	ErrPaymentAlreadyRefunded = errors.New("платёж уже возвращён")
)

// Package service содержит бизнес-логику Payment Service.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/order-saga/pkg/events"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/payment/internal/domain"
	"example.com/order-saga/services/payment/internal/gateway"
	"example.com/order-saga/services/payment/internal/repository"
)

// dedupeTTL — срок жизни ключа дедупликации в Redis.
// Повторные доставки payment_requested приходят в пределах минут;
// сутки покрывают любой реалистичный лаг с запасом.
const dedupeTTL = 24 * time.Hour

// PaymentService определяет бизнес-операции Payment Service.
type PaymentService interface {
	// ProcessPayment проводит платёж по команде payment_requested.
	// Идемпотентен: повторная доставка той же команды не создаёт
	// второй платёж, а переиздаёт прежний результат.
	ProcessPayment(ctx context.Context, e *events.PaymentRequested) error

	// RefundPayment возвращает платёж по команде payment_refund_requested.
	RefundPayment(ctx context.Context, e *events.PaymentRefundRequested) error

	// GetPaymentByOrderID возвращает последний платёж заказа.
	GetPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
}

// paymentService — реализация PaymentService.
type paymentService struct {
	payments       repository.PaymentRepository
	gateway        gateway.PaymentGateway
	redis          *redis.Client // может быть nil — тогда дедупликация только по БД
	gatewayTimeout time.Duration
}

// NewPaymentService создаёт новый сервис платежей.
func NewPaymentService(
	payments repository.PaymentRepository,
	gw gateway.PaymentGateway,
	rdb *redis.Client,
	gatewayTimeout time.Duration,
) PaymentService {
	return &paymentService{
		payments:       payments,
		gateway:        gw,
		redis:          rdb,
		gatewayTimeout: gatewayTimeout,
	}
}

// ProcessPayment проводит платёж и публикует payment_processed через outbox.
func (s *paymentService) ProcessPayment(ctx context.Context, e *events.PaymentRequested) error {
	log := logger.FromContext(ctx)
	sagaID := e.Saga()

	// Быстрый путь дедупликации: SETNX в Redis. Промах Redis не фатален —
	// истинная идемпотентность держится на уникальности (order_id, saga_id) в БД.
	if s.redis != nil && sagaID != "" {
		fresh, err := s.redis.SetNX(ctx, dedupeKey(sagaID, e.OrderID), 1, dedupeTTL).Result()
		if err != nil {
			log.Warn().Err(err).Msg("Redis недоступен, дедупликация только по БД")
		} else if !fresh {
			log.Debug().
				Str("order_id", e.OrderID).
				Str("saga_id", sagaID).
				Msg("Повторная доставка payment_requested")
		}
	}

	// Проверяем, не обработана ли команда раньше
	if sagaID != "" {
		existing, err := s.payments.GetByOrderAndSaga(ctx, e.OrderID, sagaID)
		if err == nil {
			return s.resumeExisting(ctx, existing)
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return err
		}
	}

	payment := domain.NewPayment(e.OrderID, e.CustomerID, e.Amount, sagaID)
	if err := s.payments.Create(ctx, payment); err != nil {
		// Гонка двух доставок: уникальный индекс пропустил только одну.
		// Перечитываем и продолжаем с существующим платежом.
		if sagaID != "" {
			if existing, gerr := s.payments.GetByOrderAndSaga(ctx, e.OrderID, sagaID); gerr == nil {
				return s.resumeExisting(ctx, existing)
			}
		}
		return fmt.Errorf("ошибка создания платежа: %w", err)
	}

	return s.runGateway(ctx, payment)
}

// resumeExisting продолжает обработку существующего платежа.
// Завершённый платёж — переиздаём прежний результат; незавершённый
// (обрыв между созданием и вызовом шлюза) — доводим до конца.
func (s *paymentService) resumeExisting(ctx context.Context, payment *domain.Payment) error {
	log := logger.FromContext(ctx)

	if !payment.Status.IsTerminal() {
		log.Info().
			Str("payment_id", payment.ID).
			Str("status", string(payment.Status)).
			Msg("Незавершённый платёж, продолжаем обработку")
		return s.runGateway(ctx, payment)
	}

	message := "Payment processed successfully"
	if !payment.Succeeded() {
		if reason, ok := payment.Metadata[domain.MetaFailureReason].(string); ok {
			message = reason
		} else {
			message = "Payment failed"
		}
	}

	log.Info().
		Str("payment_id", payment.ID).
		Str("status", string(payment.Status)).
		Msg("Платёж уже обработан, переиздаём результат")

	return s.publishProcessed(ctx, payment, payment.Succeeded(), message)
}

// runGateway вызывает платёжный шлюз и фиксирует исход.
func (s *paymentService) runGateway(ctx context.Context, payment *domain.Payment) error {
	log := logger.FromContext(ctx)

	payment.StartProcessing()
	if err := s.payments.Update(ctx, payment); err != nil {
		return fmt.Errorf("ошибка обновления платежа: %w", err)
	}

	result, err := s.callGateway(ctx, payment)

	var success bool
	var message string
	switch {
	case err != nil:
		// Сбой шлюза (таймаут, паника) — платёж провален, сага узнаёт причину
		message = fmt.Sprintf("Payment processing error: %s", err)
		payment.Fail(message)
		log.Error().Err(err).Str("payment_id", payment.ID).Msg("Сбой платёжного шлюза")
	case result.Success:
		success = true
		message = result.Message
		payment.Complete(result.TransactionID)
		log.Info().
			Str("payment_id", payment.ID).
			Str("transaction_id", result.TransactionID).
			Float64("amount", payment.Amount).
			Msg("Платёж проведён")
	default:
		message = result.Message
		payment.Fail(result.Message)
		log.Info().
			Str("payment_id", payment.ID).
			Str("reason", result.Message).
			Msg("Платёж отклонён")
	}

	return s.publishProcessed(ctx, payment, success, message)
}

// callGateway вызывает шлюз с таймаутом. Паника шлюза превращается в ошибку.
func (s *paymentService) callGateway(ctx context.Context, payment *domain.Payment) (result *gateway.Result, err error) {
	callCtx := ctx
	if s.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%v", r)
		}
	}()

	return s.gateway.ProcessPayment(callCtx, payment.ID, payment.Amount, payment.CustomerID)
}

// publishProcessed атомарно сохраняет платёж и событие payment_processed.
func (s *paymentService) publishProcessed(ctx context.Context, payment *domain.Payment, success bool, message string) error {
	ev := events.PaymentProcessed{
		Header:    events.NewHeader(events.TypePaymentProcessed, derefSagaID(payment)),
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		Success:   success,
		Message:   message,
	}

	rec, err := outbox.FromEvent(outbox.AggregatePayment, payment.ID, ev)
	if err != nil {
		return err
	}

	if err := s.payments.UpdateWithOutbox(ctx, payment, []*outbox.Outbox{rec}); err != nil {
		return fmt.Errorf("ошибка сохранения платежа: %w", err)
	}

	metrics.RecordEventPublished("payment", events.TypePaymentProcessed)
	return nil
}

// RefundPayment возвращает платёж и публикует payment_refunded.
func (s *paymentService) RefundPayment(ctx context.Context, e *events.PaymentRefundRequested) error {
	log := logger.FromContext(ctx)

	payment, err := s.findForRefund(ctx, e)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			log.Warn().Str("order_id", e.OrderID).Msg("Запрос возврата для неизвестного платежа, событие отброшено")
			return nil
		}
		return err
	}

	// Возврат возможен только из COMPLETED; повторный запрос — no-op
	switch payment.Status {
	case domain.PaymentStatusRefunded:
		log.Debug().Str("payment_id", payment.ID).Msg("Платёж уже возвращён, повторный запрос — no-op")
		return nil
	case domain.PaymentStatusCompleted:
		// продолжаем
	default:
		log.Warn().
			Str("payment_id", payment.ID).
			Str("status", string(payment.Status)).
			Msg("Возврат незавершённого платежа невозможен, событие отброшено")
		return nil
	}

	transactionID := ""
	if payment.TransactionID != nil {
		transactionID = *payment.TransactionID
	}

	result, err := s.gateway.RefundPayment(ctx, transactionID, e.Amount, e.Reason)
	if err != nil {
		return fmt.Errorf("ошибка вызова шлюза для возврата: %w", err)
	}
	if !result.Success {
		// Транзиентный отказ шлюза: отдаём consumer'у на повтор
		return fmt.Errorf("шлюз отклонил возврат платежа %s: %s", payment.ID, result.Message)
	}

	if err := payment.Refund(e.Reason); err != nil {
		return err
	}

	ev := events.PaymentRefunded{
		Header:    events.NewHeader(events.TypePaymentRefunded, derefSagaID(payment)),
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		Amount:    e.Amount,
		Reason:    e.Reason,
	}

	rec, err := outbox.FromEvent(outbox.AggregatePayment, payment.ID, ev)
	if err != nil {
		return err
	}

	if err := s.payments.UpdateWithOutbox(ctx, payment, []*outbox.Outbox{rec}); err != nil {
		return fmt.Errorf("ошибка сохранения возврата: %w", err)
	}

	metrics.RecordEventPublished("payment", events.TypePaymentRefunded)

	log.Info().
		Str("payment_id", payment.ID).
		Str("order_id", payment.OrderID).
		Float64("amount", e.Amount).
		Str("reason", e.Reason).
		Msg("Платёж возвращён")

	return nil
}

// findForRefund находит платёж для возврата: по payment_id, если он задан,
// иначе по order_id.
func (s *paymentService) findForRefund(ctx context.Context, e *events.PaymentRefundRequested) (*domain.Payment, error) {
	if e.PaymentID != nil && *e.PaymentID != "" {
		return s.payments.GetByID(ctx, *e.PaymentID)
	}
	return s.payments.GetByOrderID(ctx, e.OrderID)
}

// GetPaymentByOrderID возвращает последний платёж заказа.
func (s *paymentService) GetPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.payments.GetByOrderID(ctx, orderID)
}

// dedupeKey — ключ дедупликации payment_requested в Redis.
func dedupeKey(sagaID, orderID string) string {
	return fmt.Sprintf("payment:requested:%s:%s", sagaID, orderID)
}

// derefSagaID возвращает saga_id платежа или пустую строку.
func derefSagaID(p *domain.Payment) string {
	if p.SagaID != nil {
		return *p.SagaID
	}
	return ""
}

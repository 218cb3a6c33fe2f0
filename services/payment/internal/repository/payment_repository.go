// Package repository предоставляет доступ к данным платежей через GORM.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/payment/internal/domain"
)

// PaymentRepository определяет операции над платежами.
// Финальное состояние платежа и событие payment_processed пишутся
// одной транзакцией через SaveWithOutbox.
type PaymentRepository interface {
	// Create сохраняет новый платёж.
	Create(ctx context.Context, payment *domain.Payment) error

	// Update сохраняет текущее состояние платежа.
	Update(ctx context.Context, payment *domain.Payment) error

	// UpdateWithOutbox атомарно сохраняет платёж и записи outbox.
	UpdateWithOutbox(ctx context.Context, payment *domain.Payment, records []*outbox.Outbox) error

	// GetByID возвращает платёж по ID.
	GetByID(ctx context.Context, paymentID string) (*domain.Payment, error)

	// GetByOrderID возвращает последний платёж заказа.
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)

	// GetByOrderAndSaga возвращает платёж по паре (order_id, saga_id).
	// Используется для идемпотентности payment_requested.
	GetByOrderAndSaga(ctx context.Context, orderID, sagaID string) (*domain.Payment, error)
}

// =============================================================================
// GORM модель
// =============================================================================

// PaymentModel — GORM модель таблицы payments.
// Уникальность (order_id, saga_id) гарантирует не более одного платежа
// на шаг саги при повторной доставке payment_requested.
type PaymentModel struct {
	ID            string    `gorm:"column:id;type:varchar(36);primaryKey"`
	OrderID       string    `gorm:"column:order_id;type:varchar(36);not null;uniqueIndex:idx_payments_order_saga"`
	SagaID        *string   `gorm:"column:saga_id;type:varchar(36);uniqueIndex:idx_payments_order_saga"`
	CustomerID    string    `gorm:"column:customer_id;type:varchar(64);not null;index"`
	Amount        float64   `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency      string    `gorm:"column:currency;type:varchar(3);not null;default:USD"`
	Status        string    `gorm:"column:status;type:varchar(20);not null;index"`
	PaymentMethod string    `gorm:"column:payment_method;type:varchar(20);not null"`
	TransactionID *string   `gorm:"column:transaction_id;type:varchar(64)"`
	Metadata      []byte    `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (PaymentModel) TableName() string {
	return "payments"
}

func (m *PaymentModel) toDomain() (*domain.Payment, error) {
	var metadata map[string]any
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("ошибка разбора metadata платежа %s: %w", m.ID, err)
		}
	}

	return &domain.Payment{
		ID:            m.ID,
		OrderID:       m.OrderID,
		CustomerID:    m.CustomerID,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Status:        domain.PaymentStatus(m.Status),
		PaymentMethod: domain.PaymentMethod(m.PaymentMethod),
		TransactionID: m.TransactionID,
		SagaID:        m.SagaID,
		Metadata:      metadata,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func modelFromDomain(p *domain.Payment) (*PaymentModel, error) {
	var metadata []byte
	if len(p.Metadata) > 0 {
		data, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации metadata платежа %s: %w", p.ID, err)
		}
		metadata = data
	}

	return &PaymentModel{
		ID:            p.ID,
		OrderID:       p.OrderID,
		SagaID:        p.SagaID,
		CustomerID:    p.CustomerID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		PaymentMethod: string(p.PaymentMethod),
		TransactionID: p.TransactionID,
		Metadata:      metadata,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

// =============================================================================
// Реализация
// =============================================================================

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository создаёт новый репозиторий платежей.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	model, err := modelFromDomain(payment)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *paymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	model, err := modelFromDomain(payment)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

// UpdateWithOutbox сохраняет платёж и события одной транзакцией.
func (r *paymentRepository) UpdateWithOutbox(ctx context.Context, payment *domain.Payment, records []*outbox.Outbox) error {
	model, err := modelFromDomain(payment)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(model).Error; err != nil {
			return err
		}
		for _, rec := range records {
			if err := tx.Create(outbox.ModelFromDomain(rec)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *paymentRepository) GetByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).Where("id = ?", paymentID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return model.toDomain()
}

func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return model.toDomain()
}

func (r *paymentRepository) GetByOrderAndSaga(ctx context.Context, orderID, sagaID string) (*domain.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND saga_id = ?", orderID, sagaID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return model.toDomain()
}

// Package repository содержит реализацию доступа к данным для Order Service.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"example.com/order-saga/services/order/internal/domain"
)

// OrderRepository определяет интерфейс чтения заказов из БД.
// Запись идёт через saga.Repository: заказ, журнал саги и outbox
// изменяются в одной транзакции.
type OrderRepository interface {
	// GetByID возвращает заказ по ID с загруженными позициями.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// ListByCustomerID возвращает заказы покупателя, новые первыми.
	ListByCustomerID(ctx context.Context, customerID string) ([]*domain.Order, error)
}

// OrderModel — GORM модель для таблицы orders.
// Отделена от доменной сущности для гибкости.
type OrderModel struct {
	ID          string           `gorm:"column:id;type:varchar(36);primaryKey"`
	CustomerID  string           `gorm:"column:customer_id;type:varchar(64);not null;index"`
	Status      string           `gorm:"column:status;type:varchar(20);not null;index"`
	TotalAmount float64          `gorm:"column:total_amount;type:numeric(12,2);not null"`
	SagaID      *string          `gorm:"column:saga_id;type:varchar(36)"`
	Metadata    []byte           `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	ModifiedAt  time.Time        `gorm:"column:modified_at;autoUpdateTime"`
	Items       []OrderItemModel `gorm:"foreignKey:OrderID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName возвращает имя таблицы в БД.
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel — GORM модель для таблицы order_items.
type OrderItemModel struct {
	ID        uint    `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   string  `gorm:"column:order_id;type:varchar(36);not null;index"`
	ProductID string  `gorm:"column:product_id;type:varchar(64);not null"`
	Quantity  int     `gorm:"column:quantity;not null"`
	UnitPrice float64 `gorm:"column:unit_price;type:numeric(12,2);not null"`
}

// TableName возвращает имя таблицы в БД.
func (OrderItemModel) TableName() string {
	return "order_items"
}

// toDomain конвертирует GORM модель заказа в доменную сущность.
func (m *OrderModel) toDomain() *domain.Order {
	order := &domain.Order{
		ID:          m.ID,
		CustomerID:  m.CustomerID,
		Status:      domain.OrderStatus(m.Status),
		TotalAmount: m.TotalAmount,
		SagaID:      m.SagaID,
		CreatedAt:   m.CreatedAt,
		ModifiedAt:  m.ModifiedAt,
		Items:       make([]domain.OrderItem, len(m.Items)),
	}

	// Десериализуем metadata из JSONB
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &order.Metadata)
	}

	for i, item := range m.Items {
		order.Items[i] = domain.OrderItem{
			ID:        item.ID,
			OrderID:   item.OrderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	return order
}

// ModelFromDomain конвертирует доменную сущность заказа в GORM модель.
func ModelFromDomain(o *domain.Order) *OrderModel {
	model := &OrderModel{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		SagaID:      o.SagaID,
		CreatedAt:   o.CreatedAt,
		ModifiedAt:  o.ModifiedAt,
		Items:       make([]OrderItemModel, len(o.Items)),
	}

	// Сериализуем metadata в JSONB
	if o.Metadata != nil {
		if data, err := json.Marshal(o.Metadata); err == nil {
			model.Metadata = data
		}
	}

	for i, item := range o.Items {
		model.Items[i] = OrderItemModel{
			ID:        item.ID,
			OrderID:   o.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	return model
}

// orderRepository — GORM реализация OrderRepository.
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// GetByID возвращает заказ по ID с загруженными позициями.
func (r *orderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var model OrderModel

	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// ListByCustomerID возвращает заказы покупателя, отсортированные по created_at DESC.
func (r *orderRepository) ListByCustomerID(ctx context.Context, customerID string) ([]*domain.Order, error) {
	var models []OrderModel

	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = models[i].toDomain()
	}
	return orders, nil
}

// Package domain содержит доменную модель Inventory Service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// InventoryStatus — производный статус складского остатка.
// Сериализуется именем (верхний регистр).
type InventoryStatus string

const (
	StatusInStock    InventoryStatus = "IN_STOCK"
	StatusLowStock   InventoryStatus = "LOW_STOCK"
	StatusOutOfStock InventoryStatus = "OUT_OF_STOCK"
)

// lowStockThreshold — порог, ниже которого остаток считается низким.
const lowStockThreshold = 10

// Product — агрегат товара на складе.
// Инвариант: quantity никогда не опускается ниже нуля.
type Product struct {
	ID          string
	Name        string
	Description string
	SKU         string
	Price       float64
	Quantity    int
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProduct создаёт новый товар.
func NewProduct(name, description, sku string, price float64, quantity int) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		SKU:         sku,
		Price:       price,
		Quantity:    quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate проверяет корректность товара.
func (p *Product) Validate() error {
	if p.Name == "" {
		return ErrInvalidProductName
	}
	if p.SKU == "" {
		return ErrInvalidSKU
	}
	if p.Price < 0 {
		return ErrInvalidPrice
	}
	if p.Quantity < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// Status возвращает производный статус остатка:
// OUT_OF_STOCK при нуле, LOW_STOCK ниже порога, иначе IN_STOCK.
func (p *Product) Status() InventoryStatus {
	switch {
	case p.Quantity <= 0:
		return StatusOutOfStock
	case p.Quantity < lowStockThreshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// Allocate резервирует quantity единиц товара.
// Возвращает ErrInsufficientStock, если остатка не хватает.
func (p *Product) Allocate(quantity int) error {
	if quantity > p.Quantity {
		return ErrInsufficientStock
	}
	p.Quantity -= quantity
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Release возвращает quantity единиц товара на склад.
func (p *Product) Release(quantity int) {
	p.Quantity += quantity
	p.UpdatedAt = time.Now().UTC()
}

// Allocation — результат выполнения команды аллокации для заказа.
type Allocation struct {
	OrderID        string
	SagaID         *string
	Success        bool
	AllocatedItems map[string]int
	Message        string
	CreatedAt      time.Time
}

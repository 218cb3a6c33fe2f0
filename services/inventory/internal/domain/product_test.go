package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/order-saga/services/inventory/internal/domain"
)

func TestNewProduct(t *testing.T) {
	product := domain.NewProduct("Клавиатура", "Механическая", "KB-001", 99.90, 25)

	assert.NotEmpty(t, product.ID)
	assert.Equal(t, "KB-001", product.SKU)
	assert.Equal(t, 25, product.Quantity)
	assert.NoError(t, product.Validate())
}

func TestProductValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *domain.Product)
		wantErr error
	}{
		{"пустое имя", func(p *domain.Product) { p.Name = "" }, domain.ErrInvalidProductName},
		{"пустой SKU", func(p *domain.Product) { p.SKU = "" }, domain.ErrInvalidSKU},
		{"отрицательная цена", func(p *domain.Product) { p.Price = -1 }, domain.ErrInvalidPrice},
		{"отрицательный остаток", func(p *domain.Product) { p.Quantity = -1 }, domain.ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product := domain.NewProduct("Товар", "", "SKU-1", 10, 5)
			tt.mutate(product)
			assert.ErrorIs(t, product.Validate(), tt.wantErr)
		})
	}
}

func TestProductStatus(t *testing.T) {
	tests := []struct {
		quantity int
		want     domain.InventoryStatus
	}{
		{0, domain.StatusOutOfStock},
		{-1, domain.StatusOutOfStock},
		{1, domain.StatusLowStock},
		{9, domain.StatusLowStock},
		{10, domain.StatusInStock},
		{100, domain.StatusInStock},
	}

	for _, tt := range tests {
		product := domain.NewProduct("Товар", "", "SKU-1", 10, tt.quantity)
		assert.Equal(t, tt.want, product.Status(), "quantity=%d", tt.quantity)
	}
}

func TestProductAllocate(t *testing.T) {
	product := domain.NewProduct("Товар", "", "SKU-1", 10, 5)

	require.NoError(t, product.Allocate(3))
	assert.Equal(t, 2, product.Quantity)

	// Остатка не хватает — количество не меняется
	err := product.Allocate(3)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 2, product.Quantity)
}

func TestProductRelease(t *testing.T) {
	product := domain.NewProduct("Товар", "", "SKU-1", 10, 2)

	product.Release(3)
	assert.Equal(t, 5, product.Quantity)
}

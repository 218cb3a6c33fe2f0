// Package repository предоставляет доступ к данным товаров через GORM.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/inventory/internal/domain"
)

// ProductRepository определяет операции над складскими остатками.
type ProductRepository interface {
	// Create сохраняет новый товар. SKU уникален.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID возвращает товар по ID.
	GetByID(ctx context.Context, productID string) (*domain.Product, error)

	// List возвращает все товары, отсортированные по названию.
	List(ctx context.Context) ([]*domain.Product, error)

	// AllocateStock атомарно списывает quantity единиц товара.
	// Условный UPDATE исключает уход остатка в минус при любой
	// конкуренции: списание проходит только если остатка хватает.
	AllocateStock(ctx context.Context, productID string, quantity int) error

	// ReleaseStock возвращает quantity единиц товара на склад.
	ReleaseStock(ctx context.Context, productID string, quantity int) error

	// InsertOutbox пишет записи outbox одной транзакцией.
	InsertOutbox(ctx context.Context, records []*outbox.Outbox) error
}

// =============================================================================
// GORM модель
// =============================================================================

// ProductModel — GORM модель таблицы products.
type ProductModel struct {
	ID          string    `gorm:"column:id;type:varchar(36);primaryKey"`
	Name        string    `gorm:"column:name;type:varchar(255);not null"`
	Description string    `gorm:"column:description;type:text"`
	SKU         string    `gorm:"column:sku;type:varchar(64);not null;uniqueIndex"`
	Price       float64   `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity    int       `gorm:"column:quantity;not null"`
	Metadata    []byte    `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (ProductModel) TableName() string {
	return "products"
}

func (m *ProductModel) toDomain() (*domain.Product, error) {
	var metadata map[string]any
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("ошибка разбора metadata товара %s: %w", m.ID, err)
		}
	}

	return &domain.Product{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		SKU:         m.SKU,
		Price:       m.Price,
		Quantity:    m.Quantity,
		Metadata:    metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func modelFromDomain(p *domain.Product) (*ProductModel, error) {
	var metadata []byte
	if len(p.Metadata) > 0 {
		data, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации metadata товара %s: %w", p.ID, err)
		}
		metadata = data
	}

	return &ProductModel{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		SKU:         p.SKU,
		Price:       p.Price,
		Quantity:    p.Quantity,
		Metadata:    metadata,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

// =============================================================================
// Реализация
// =============================================================================

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository создаёт новый репозиторий товаров.
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	model, err := modelFromDomain(product)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ProductModel{}).Where("sku = ?", product.SKU).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrDuplicateSKU
		}
		return tx.Create(model).Error
	})
}

func (r *productRepository) GetByID(ctx context.Context, productID string) (*domain.Product, error) {
	var model ProductModel
	err := r.db.WithContext(ctx).Where("id = ?", productID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return model.toDomain()
}

func (r *productRepository) List(ctx context.Context) ([]*domain.Product, error) {
	var models []ProductModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Product, len(models))
	for i := range models {
		product, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		result[i] = product
	}
	return result, nil
}

// AllocateStock — условное списание: UPDATE проходит только при
// достаточном остатке, поэтому quantity не уходит в минус даже при
// конкурентных аллокациях пересекающихся наборов товаров.
func (r *productRepository) AllocateStock(ctx context.Context, productID string, quantity int) error {
	result := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND quantity >= ?", productID, quantity).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", quantity),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// UPDATE не прошёл: либо товара нет, либо остатка не хватает
	var count int64
	if err := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ?", productID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrProductNotFound
	}
	return domain.ErrInsufficientStock
}

// ReleaseStock возвращает списанный остаток (компенсация).
func (r *productRepository) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	result := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", quantity),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// InsertOutbox пишет записи outbox одной транзакцией.
func (r *productRepository) InsertOutbox(ctx context.Context, records []*outbox.Outbox) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if err := tx.Create(outbox.ModelFromDomain(rec)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

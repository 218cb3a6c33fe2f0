package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/inventory/internal/domain"
)

// ErrAllocationNotFound — аллокация не найдена.
var ErrAllocationNotFound = errors.New("аллокация не найдена")

// AllocationRepository — журнал аллокаций по заказам.
// Уникальность (order_id, saga_id) делает обработку inventory_requested
// идемпотентной: повторная доставка находит прежний результат.
type AllocationRepository interface {
	// Get возвращает результат аллокации для пары (order_id, saga_id).
	Get(ctx context.Context, orderID, sagaID string) (*domain.Allocation, error)

	// Save атомарно пишет результат аллокации, записи outbox и возвраты
	// остатков releases (компенсация провальной аллокации) — одной
	// транзакцией: событие провала не может опередить возврат товара.
	// При конфликте (order_id, saga_id) ничего не пишет, включая releases,
	// и возвращает false: победила конкурентная доставка той же команды.
	Save(ctx context.Context, alloc *domain.Allocation, records []*outbox.Outbox, releases map[string]int) (bool, error)
}

// AllocationModel — GORM модель таблицы allocations.
type AllocationModel struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   string    `gorm:"column:order_id;type:varchar(36);not null;uniqueIndex:idx_allocations_order_saga"`
	SagaID    *string   `gorm:"column:saga_id;type:varchar(36);uniqueIndex:idx_allocations_order_saga"`
	Success   bool      `gorm:"column:success;not null"`
	Allocated []byte    `gorm:"column:allocated;type:jsonb"`
	Message   string    `gorm:"column:message;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (AllocationModel) TableName() string {
	return "allocations"
}

func (m *AllocationModel) toDomain() (*domain.Allocation, error) {
	var allocated map[string]int
	if len(m.Allocated) > 0 {
		if err := json.Unmarshal(m.Allocated, &allocated); err != nil {
			return nil, fmt.Errorf("ошибка разбора аллокации заказа %s: %w", m.OrderID, err)
		}
	}

	return &domain.Allocation{
		OrderID:        m.OrderID,
		SagaID:         m.SagaID,
		Success:        m.Success,
		AllocatedItems: allocated,
		Message:        m.Message,
		CreatedAt:      m.CreatedAt,
	}, nil
}

type allocationRepository struct {
	db *gorm.DB
}

// NewAllocationRepository создаёт новый журнал аллокаций.
func NewAllocationRepository(db *gorm.DB) AllocationRepository {
	return &allocationRepository{db: db}
}

func (r *allocationRepository) Get(ctx context.Context, orderID, sagaID string) (*domain.Allocation, error) {
	var model AllocationModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND saga_id = ?", orderID, sagaID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		return nil, err
	}
	return model.toDomain()
}

func (r *allocationRepository) Save(ctx context.Context, alloc *domain.Allocation, records []*outbox.Outbox, releases map[string]int) (bool, error) {
	var allocated []byte
	if len(alloc.AllocatedItems) > 0 {
		data, err := json.Marshal(alloc.AllocatedItems)
		if err != nil {
			return false, fmt.Errorf("ошибка сериализации аллокации заказа %s: %w", alloc.OrderID, err)
		}
		allocated = data
	}

	model := &AllocationModel{
		OrderID:   alloc.OrderID,
		SagaID:    alloc.SagaID,
		Success:   alloc.Success,
		Allocated: allocated,
		Message:   alloc.Message,
		CreatedAt: alloc.CreatedAt,
	}

	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "saga_id"}},
			DoNothing: true,
		}).Create(model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Конкурентная доставка успела раньше: события не переиздаём
			return nil
		}
		inserted = true

		for _, rec := range records {
			if err := tx.Create(outbox.ModelFromDomain(rec)).Error; err != nil {
				return err
			}
		}

		releaseIDs := make([]string, 0, len(releases))
		for pid := range releases {
			releaseIDs = append(releaseIDs, pid)
		}
		sort.Strings(releaseIDs)

		for _, pid := range releaseIDs {
			result := tx.Model(&ProductModel{}).
				Where("id = ?", pid).
				Updates(map[string]any{
					"quantity":   gorm.Expr("quantity + ?", releases[pid]),
					"updated_at": time.Now().UTC(),
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domain.ErrProductNotFound
			}
		}
		return nil
	})
	return inserted, err
}

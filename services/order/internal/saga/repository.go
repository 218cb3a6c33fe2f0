package saga

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/order/internal/domain"
	"example.com/order-saga/services/order/internal/repository"
)

// ErrSagaNotFound — сага не найдена.
var ErrSagaNotFound = errors.New("сага не найдена")

// =============================================================================
// GORM модели
// =============================================================================

// SagaModel — GORM модель для таблицы saga_log.
type SagaModel struct {
	SagaID    string     `gorm:"column:saga_id;type:varchar(36);primaryKey"`
	OrderID   string     `gorm:"column:order_id;type:varchar(36);not null;uniqueIndex"`
	Status    string     `gorm:"column:status;type:varchar(20);not null;index"`
	StartedAt time.Time  `gorm:"column:started_at;not null"`
	EndedAt   *time.Time `gorm:"column:ended_at"`
}

func (SagaModel) TableName() string {
	return "saga_log"
}

func (m *SagaModel) toDomain() *Saga {
	return &Saga{
		ID:        m.SagaID,
		OrderID:   m.OrderID,
		Status:    Status(m.Status),
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
	}
}

func sagaModelFromDomain(s *Saga) *SagaModel {
	return &SagaModel{
		SagaID:    s.ID,
		OrderID:   s.OrderID,
		Status:    string(s.Status),
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
}

// EventModel — GORM модель для таблицы saga_events.
// Уникальность (saga_id, event_id) отбрасывает дубли at-least-once доставки.
type EventModel struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	SagaID    string    `gorm:"column:saga_id;type:varchar(36);not null;index;uniqueIndex:idx_saga_events_dedupe"`
	EventID   string    `gorm:"column:event_id;type:varchar(36);not null;uniqueIndex:idx_saga_events_dedupe"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null"`
	EventData []byte    `gorm:"column:event_data;type:jsonb"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
}

func (EventModel) TableName() string {
	return "saga_events"
}

func (m *EventModel) toDomain() *Event {
	return &Event{
		ID:        m.ID,
		SagaID:    m.SagaID,
		EventID:   m.EventID,
		EventType: m.EventType,
		EventData: m.EventData,
		Timestamp: m.Timestamp,
	}
}

func eventModelFromDomain(e *Event) *EventModel {
	return &EventModel{
		SagaID:    e.SagaID,
		EventID:   e.EventID,
		EventType: e.EventType,
		EventData: e.EventData,
		Timestamp: e.Timestamp,
	}
}

// =============================================================================
// Репозиторий
// =============================================================================

// Repository определяет операции над журналом саги.
// Составные методы выполняются в одной транзакции БД — это решает
// проблему dual write: заказ, журнал и outbox меняются атомарно.
type Repository interface {
	// CreateOrderWithSaga атомарно создаёт заказ, сагу, записи журнала
	// и записи outbox для публикации стартовых событий.
	CreateOrderWithSaga(ctx context.Context, order *domain.Order, sg *Saga, sagaEvents []*Event, records []*outbox.Outbox) error

	// UpdateOrderWithSaga атомарно сохраняет новое состояние заказа,
	// дописывает журнал, опционально завершает сагу и кладёт события в outbox.
	// endStatus == nil оставляет сагу в текущем статусе.
	// Возвращает true, если сага завершена именно этим вызовом:
	// уже завершённую сагу (ended_at IS NOT NULL) повторное завершение не трогает.
	UpdateOrderWithSaga(ctx context.Context, order *domain.Order, endStatus *Status, sagaEvents []*Event, records []*outbox.Outbox) (bool, error)

	// GetSaga возвращает сагу по ID.
	GetSaga(ctx context.Context, sagaID string) (*Saga, error)

	// GetSagaByOrderID возвращает сагу заказа.
	GetSagaByOrderID(ctx context.Context, orderID string) (*Saga, error)

	// GetEvents возвращает события саги в хронологическом порядке.
	GetEvents(ctx context.Context, sagaID string) ([]*Event, error)
}

// sagaRepository — GORM реализация Repository.
type sagaRepository struct {
	db *gorm.DB
}

// NewRepository создаёт новый репозиторий журнала саги.
func NewRepository(db *gorm.DB) Repository {
	return &sagaRepository{db: db}
}

// CreateOrderWithSaga атомарно создаёт заказ, сагу, журнал и outbox.
func (r *sagaRepository) CreateOrderWithSaga(ctx context.Context, order *domain.Order, sg *Saga, sagaEvents []*Event, records []*outbox.Outbox) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Заказ с позициями (GORM создаст их через ассоциацию)
		orderModel := repository.ModelFromDomain(order)
		if err := tx.Create(orderModel).Error; err != nil {
			return err
		}
		order.CreatedAt = orderModel.CreatedAt
		order.ModifiedAt = orderModel.ModifiedAt

		// 2. Сага
		if err := tx.Create(sagaModelFromDomain(sg)).Error; err != nil {
			return err
		}

		// 3. Журнал саги
		if err := insertSagaEvents(tx, sagaEvents); err != nil {
			return err
		}

		// 4. Outbox
		return insertOutbox(tx, records)
	})
}

// UpdateOrderWithSaga атомарно сохраняет состояние заказа и продвигает сагу.
func (r *sagaRepository) UpdateOrderWithSaga(ctx context.Context, order *domain.Order, endStatus *Status, sagaEvents []*Event, records []*outbox.Outbox) (bool, error) {
	sagaEnded := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Обновляем заказ (статус + metadata)
		orderModel := repository.ModelFromDomain(order)
		result := tx.Model(&repository.OrderModel{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{
				"status":      orderModel.Status,
				"metadata":    orderModel.Metadata,
				"modified_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrOrderNotFound
		}

		// 2. Завершаем сагу. ended_at устанавливается не более одного раза:
		// повторное завершение (дубликат события, отмена после финала) — no-op.
		if endStatus != nil {
			res := tx.Model(&SagaModel{}).
				Where("saga_id = ? AND ended_at IS NULL", derefSagaID(order)).
				Updates(map[string]any{
					"status":   string(*endStatus),
					"ended_at": time.Now().UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			sagaEnded = res.RowsAffected > 0
		}

		// 3. Журнал саги
		if err := insertSagaEvents(tx, sagaEvents); err != nil {
			return err
		}

		// 4. Outbox
		return insertOutbox(tx, records)
	})
	if err != nil {
		return false, err
	}
	return sagaEnded, nil
}

// GetSaga возвращает сагу по ID.
func (r *sagaRepository) GetSaga(ctx context.Context, sagaID string) (*Saga, error) {
	var model SagaModel
	err := r.db.WithContext(ctx).Where("saga_id = ?", sagaID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSagaNotFound
		}
		return nil, err
	}
	return model.toDomain(), nil
}

// GetSagaByOrderID возвращает сагу заказа.
func (r *sagaRepository) GetSagaByOrderID(ctx context.Context, orderID string) (*Saga, error) {
	var model SagaModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSagaNotFound
		}
		return nil, err
	}
	return model.toDomain(), nil
}

// GetEvents возвращает события саги по возрастанию времени.
// Вторичный ключ id стабилизирует порядок событий с одинаковым timestamp
// (order_created и payment_requested пишутся одной транзакцией).
func (r *sagaRepository) GetEvents(ctx context.Context, sagaID string) ([]*Event, error) {
	var models []EventModel
	err := r.db.WithContext(ctx).
		Where("saga_id = ?", sagaID).
		Order("timestamp ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	result := make([]*Event, len(models))
	for i := range models {
		result[i] = models[i].toDomain()
	}
	return result, nil
}

// insertSagaEvents пишет события журнала; дубли (saga_id, event_id) отбрасываются.
func insertSagaEvents(tx *gorm.DB, sagaEvents []*Event) error {
	for _, e := range sagaEvents {
		model := eventModelFromDomain(e)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "saga_id"}, {Name: "event_id"}},
			DoNothing: true,
		}).Create(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// insertOutbox пишет записи outbox в текущей транзакции.
func insertOutbox(tx *gorm.DB, records []*outbox.Outbox) error {
	for _, rec := range records {
		if err := tx.Create(outbox.ModelFromDomain(rec)).Error; err != nil {
			return err
		}
	}
	return nil
}

// derefSagaID возвращает saga_id заказа или пустую строку.
func derefSagaID(o *domain.Order) string {
	if o.SagaID != nil {
		return *o.SagaID
	}
	return ""
}

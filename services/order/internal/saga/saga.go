// Package saga содержит журнал саги Order Service и обработчики событий,
// продвигающие заказ по шагам хореографии.
package saga

import (
	"time"

	"example.com/order-saga/pkg/events"
)

// Status — статус саги.
type Status string

const (
	// StatusStarted — сага запущена, заказ в работе.
	StatusStarted Status = "STARTED"

	// StatusCompleted — сага завершена успешно (товары зарезервированы).
	StatusCompleted Status = "COMPLETED"

	// StatusFailed — сага провалилась (отказ оплаты, нехватка товара, отмена).
	StatusFailed Status = "FAILED"
)

// Saga — запись журнала саги для одного заказа.
type Saga struct {
	ID        string     // UUID саги
	OrderID   string     // Заказ, который ведёт сага
	Status    Status     // STARTED / COMPLETED / FAILED
	StartedAt time.Time  // Время запуска
	EndedAt   *time.Time // Время завершения (устанавливается не более одного раза)
}

// IsEnded возвращает true для завершённой саги.
func (s *Saga) IsEnded() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Event — событие, записанное в журнал саги.
// Дубликаты отбрасываются по уникальности (saga_id, event_id).
type Event struct {
	ID        uint      // Автоинкрементный идентификатор
	SagaID    string    // Сага, к которой относится событие
	EventID   string    // event_id из заголовка события
	EventType string    // event_type из заголовка события
	EventData []byte    // Полный JSON события
	Timestamp time.Time // Время события (из заголовка)
}

// FromEnvelope строит запись журнала из события саги.
func FromEnvelope(sagaID string, e events.Event) (*Event, error) {
	data, err := events.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &Event{
		SagaID:    sagaID,
		EventID:   e.ID(),
		EventType: e.Type(),
		EventData: data,
		Timestamp: e.Occurred(),
	}, nil
}

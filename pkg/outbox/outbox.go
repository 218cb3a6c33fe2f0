// Package outbox реализует Outbox Pattern для гарантированной доставки событий в Kafka.
// Используется всеми тремя сервисами саги: агрегат и события пишутся в одной
// транзакции БД, отдельный OutboxWorker читает outbox и публикует в Kafka.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/order-saga/pkg/events"
)

// Типы агрегатов — каждый сервис дренирует только свои записи.
const (
	AggregateOrder     = "order"
	AggregatePayment   = "payment"
	AggregateInventory = "inventory"
)

// Outbox — запись в таблице outbox для гарантированной доставки в Kafka.
type Outbox struct {
	ID            string            // UUID записи
	AggregateType string            // Тип агрегата (order / payment / inventory)
	AggregateID   string            // ID агрегата (order_id / payment_id / product_id)
	EventType     string            // Тип события (order_created, payment_processed, ...)
	Topic         string            // Kafka топик
	MessageKey    string            // Ключ сообщения (для партиционирования)
	Payload       []byte            // JSON payload
	Headers       map[string]string // Headers для Kafka (trace_id, correlation_id)
	CreatedAt     time.Time         // Время создания
	ProcessedAt   *time.Time        // Время обработки (nil = не обработана)
	RetryCount    int               // Количество попыток отправки
	LastError     *string           // Последняя ошибка
}

// FromEvent строит запись outbox из события саги.
// Топик выводится из типа события, ключ — saga_id (откат на order_id).
func FromEvent(aggregateType, aggregateID string, e events.Event) (*Outbox, error) {
	topic := events.TopicFor(e.Type())
	if topic == "" {
		return nil, fmt.Errorf("нет топика для типа события %q", e.Type())
	}

	payload, err := events.Marshal(e)
	if err != nil {
		return nil, err
	}

	return &Outbox{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     e.Type(),
		Topic:         topic,
		MessageKey:    e.PartitionKey(),
		Payload:       payload,
	}, nil
}

// HeadersJSON возвращает headers в формате JSON для БД.
func (o *Outbox) HeadersJSON() ([]byte, error) {
	if o.Headers == nil {
		return nil, nil
	}
	return json.Marshal(o.Headers)
}

// SetHeadersFromJSON устанавливает headers из JSON.
func (o *Outbox) SetHeadersFromJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &o.Headers)
}

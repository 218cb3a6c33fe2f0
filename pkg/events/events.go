// Package events содержит общие определения событий саги.
//
// Все сервисы обмениваются JSON событиями через Kafka. Каждое событие
// состоит из общего заголовка (event_id, event_type, timestamp, saga_id)
// и типизированной нагрузки; на проводе заголовок и нагрузка сериализуются
// в один плоский объект, разбор ветвится по event_type.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Топики Kafka.
const (
	TopicOrders    = "orders"
	TopicPayments  = "payments"
	TopicInventory = "inventory"
	TopicShipping  = "shipping"

	// TopicDLQ — dead letter queue для необрабатываемых сообщений.
	TopicDLQ = "dlq.events"
)

// Типы событий (значение поля event_type на проводе).
const (
	TypeOrderCreated           = "order_created"
	TypeOrderCancelled         = "order_cancelled"
	TypePaymentRequested       = "payment_requested"
	TypePaymentProcessed       = "payment_processed"
	TypePaymentRefundRequested = "payment_refund_requested"
	TypePaymentRefunded        = "payment_refunded"
	TypeInventoryRequested     = "inventory_requested"
	TypeInventoryAllocated     = "inventory_allocated"
	TypeInventoryReleased      = "inventory_released"
	TypeOrderShipped           = "order_shipped"
)

// ErrUnknownEventType возвращается при разборе события с неизвестным event_type.
var ErrUnknownEventType = errors.New("неизвестный тип события")

// Header — общий заголовок каждого события.
// Встраивается в типизированные события; JSON остаётся плоским.
type Header struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	SagaID    *string   `json:"saga_id,omitempty"`
}

// NewHeader создаёт заголовок события с новым UUID и текущим временем.
// sagaID может быть пустым — тогда saga_id не попадает на провод.
func NewHeader(eventType, sagaID string) Header {
	h := Header{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
	if sagaID != "" {
		h.SagaID = &sagaID
	}
	return h
}

// Type возвращает тип события.
func (h Header) Type() string {
	return h.EventType
}

// ID возвращает идентификатор события.
func (h Header) ID() string {
	return h.EventID
}

// Occurred возвращает время события.
func (h Header) Occurred() time.Time {
	return h.Timestamp
}

// Saga возвращает saga_id события или пустую строку.
func (h Header) Saga() string {
	if h.SagaID != nil {
		return *h.SagaID
	}
	return ""
}

// Event — общий интерфейс всех событий саги.
type Event interface {
	// Type возвращает event_type события.
	Type() string
	// ID возвращает event_id события.
	ID() string
	// Occurred возвращает время события.
	Occurred() time.Time
	// Saga возвращает saga_id события или пустую строку.
	Saga() string
	// PartitionKey возвращает ключ партиционирования Kafka:
	// saga_id, а при его отсутствии order_id. События одной саги
	// попадают в одну партицию и обрабатываются по порядку.
	PartitionKey() string
}

// partitionKey — saga_id с откатом на order_id.
func partitionKey(h Header, orderID string) string {
	if h.SagaID != nil && *h.SagaID != "" {
		return *h.SagaID
	}
	return orderID
}

// === События топика orders ===

// OrderItem — позиция заказа в нагрузке order_created.
type OrderItem struct {
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderCreated публикуется Order Service после создания заказа.
type OrderCreated struct {
	Header
	OrderID     string               `json:"order_id"`
	CustomerID  string               `json:"customer_id"`
	TotalAmount float64              `json:"total_amount"`
	Items       map[string]OrderItem `json:"items"`
}

func (e OrderCreated) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// OrderCancelled публикуется Order Service при отмене заказа.
type OrderCancelled struct {
	Header
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func (e OrderCancelled) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// === События топика payments ===

// PaymentRequested — команда Payment Service провести платёж.
type PaymentRequested struct {
	Header
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	Amount     float64 `json:"amount"`
}

func (e PaymentRequested) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// PaymentProcessed — результат проведения платежа (успех или отказ).
type PaymentProcessed struct {
	Header
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

func (e PaymentProcessed) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// PaymentRefundRequested — команда Payment Service вернуть платёж.
// Публикуется Order Service при провале аллокации после успешной оплаты.
type PaymentRefundRequested struct {
	Header
	OrderID   string  `json:"order_id"`
	PaymentID *string `json:"payment_id,omitempty"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}

func (e PaymentRefundRequested) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// PaymentRefunded публикуется Payment Service после возврата платежа.
type PaymentRefunded struct {
	Header
	OrderID   string  `json:"order_id"`
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}

func (e PaymentRefunded) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// === События топика inventory ===

// InventoryRequested — команда Inventory Service зарезервировать товары.
type InventoryRequested struct {
	Header
	OrderID string         `json:"order_id"`
	Items   map[string]int `json:"items"`
}

func (e InventoryRequested) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// InventoryAllocated — результат резервирования (успех или отказ).
type InventoryAllocated struct {
	Header
	OrderID        string         `json:"order_id"`
	Success        bool           `json:"success"`
	Message        string         `json:"message"`
	AllocatedItems map[string]int `json:"allocated_items"`
}

func (e InventoryAllocated) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// InventoryReleased публикуется при откате частичной аллокации.
type InventoryReleased struct {
	Header
	OrderID string         `json:"order_id"`
	Items   map[string]int `json:"items"`
}

func (e InventoryReleased) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// === События топика shipping ===

// OrderShipped — заказ отгружен. Производится внешней системой доставки;
// Order Service только потребляет это событие.
type OrderShipped struct {
	Header
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number"`
}

func (e OrderShipped) PartitionKey() string { return partitionKey(e.Header, e.OrderID) }

// === Кодек ===

// Marshal сериализует событие в JSON.
func Marshal(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события %s: %w", e.Type(), err)
	}
	return data, nil
}

// Unmarshal разбирает JSON событие, ветвясь по event_type.
// Возвращает ErrUnknownEventType для неизвестных типов.
func Unmarshal(data []byte) (Event, error) {
	var probe struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("ошибка разбора заголовка события: %w", err)
	}

	var e Event
	switch probe.EventType {
	case TypeOrderCreated:
		e = &OrderCreated{}
	case TypeOrderCancelled:
		e = &OrderCancelled{}
	case TypePaymentRequested:
		e = &PaymentRequested{}
	case TypePaymentProcessed:
		e = &PaymentProcessed{}
	case TypePaymentRefundRequested:
		e = &PaymentRefundRequested{}
	case TypePaymentRefunded:
		e = &PaymentRefunded{}
	case TypeInventoryRequested:
		e = &InventoryRequested{}
	case TypeInventoryAllocated:
		e = &InventoryAllocated{}
	case TypeInventoryReleased:
		e = &InventoryReleased{}
	case TypeOrderShipped:
		e = &OrderShipped{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, probe.EventType)
	}

	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("ошибка разбора события %s: %w", probe.EventType, err)
	}
	return e, nil
}

// TopicFor возвращает топик, в который публикуется данный тип события.
func TopicFor(eventType string) string {
	switch eventType {
	case TypeOrderCreated, TypeOrderCancelled:
		return TopicOrders
	case TypePaymentRequested, TypePaymentProcessed, TypePaymentRefundRequested, TypePaymentRefunded:
		return TopicPayments
	case TypeInventoryRequested, TypeInventoryAllocated, TypeInventoryReleased:
		return TopicInventory
	case TypeOrderShipped:
		return TopicShipping
	default:
		return ""
	}
}

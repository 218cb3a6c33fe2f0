// Package domain содержит бизнес-сущности и доменные ошибки Order Service.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus — статус заказа в системе.
type OrderStatus string

const (
	// OrderStatusCreated — заказ создан, сага ещё не двинулась.
	OrderStatusCreated OrderStatus = "CREATED"

	// OrderStatusPendingPayment — опубликован payment_requested, ждём ответ Payment Service.
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"

	// OrderStatusPaymentConfirmed — оплата прошла успешно.
	OrderStatusPaymentConfirmed OrderStatus = "PAYMENT_CONFIRMED"

	// OrderStatusPendingInventory — опубликован inventory_requested, ждём резервирование.
	OrderStatusPendingInventory OrderStatus = "PENDING_INVENTORY"

	// OrderStatusInventoryConfirmed — товары зарезервированы, сага завершена успешно.
	OrderStatusInventoryConfirmed OrderStatus = "INVENTORY_CONFIRMED"

	// OrderStatusShipped — заказ отгружен (сигнал внешней системы доставки).
	OrderStatusShipped OrderStatus = "SHIPPED"

	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "DELIVERED"

	// OrderStatusCancelled — заказ отменён покупателем или системой.
	OrderStatusCancelled OrderStatus = "CANCELLED"

	// OrderStatusFailed — сага провалилась (платёж отклонён, нет товара).
	OrderStatusFailed OrderStatus = "FAILED"
)

// Ключи metadata заказа.
const (
	MetaPaymentID            = "payment_id"
	MetaPaymentFailureReason = "payment_failure_reason"
	MetaInventoryFailure     = "inventory_failure_reason"
	MetaAllocatedItems       = "allocated_items"
	MetaCancellationReason   = "cancellation_reason"
	MetaTrackingNumber       = "tracking_number"
)

// allowedTransitions описывает допустимые переходы статусов заказа.
// Отмена обрабатывается отдельно в Cancel: она разрешена из любого
// состояния кроме SHIPPED и DELIVERED.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:            {OrderStatusPendingPayment},
	OrderStatusPendingPayment:     {OrderStatusPaymentConfirmed, OrderStatusFailed},
	OrderStatusPaymentConfirmed:   {OrderStatusPendingInventory},
	OrderStatusPendingInventory:   {OrderStatusInventoryConfirmed, OrderStatusFailed},
	OrderStatusInventoryConfirmed: {OrderStatusShipped},
	OrderStatusShipped:            {OrderStatusDelivered},
}

// IsTerminal возвращает true для конечных статусов.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusFailed
}

// Order — заказ в системе.
// Это доменная сущность без зависимостей от инфраструктуры (GORM, Kafka).
type Order struct {
	ID          string         // Уникальный идентификатор заказа (UUID)
	CustomerID  string         // ID покупателя
	Items       []OrderItem    // Позиции заказа
	TotalAmount float64        // Общая сумма заказа
	Status      OrderStatus    // Текущий статус заказа
	SagaID      *string        // ID саги (устанавливается один раз при создании)
	Metadata    map[string]any // Причины ошибок, allocated_items, tracking_number
	CreatedAt   time.Time      // Дата создания заказа
	ModifiedAt  time.Time      // Дата последнего изменения
}

// OrderItem — позиция заказа.
type OrderItem struct {
	ID        uint    // Автоинкрементный идентификатор позиции
	OrderID   string  // ID заказа, к которому относится позиция
	ProductID string  // ID товара
	Quantity  int     // Количество единиц товара
	UnitPrice float64 // Цена за единицу товара
}

// Validate проверяет корректность полей позиции заказа.
func (oi *OrderItem) Validate() error {
	if strings.TrimSpace(oi.ProductID) == "" {
		return ErrInvalidProductID
	}
	if oi.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if oi.UnitPrice < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Total возвращает общую стоимость позиции.
func (oi *OrderItem) Total() float64 {
	return float64(oi.Quantity) * oi.UnitPrice
}

// Validate проверяет корректность полей заказа.
// Вызывается перед созданием заказа.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.CustomerID) == "" {
		return ErrInvalidCustomerID
	}
	if len(o.Items) == 0 {
		return ErrEmptyOrderItems
	}
	for i := range o.Items {
		if err := o.Items[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CalculateTotal пересчитывает общую сумму заказа из позиций.
func (o *Order) CalculateTotal() {
	var total float64
	for i := range o.Items {
		total += o.Items[i].Total()
	}
	o.TotalAmount = total
}

// ItemsMap возвращает позиции в виде product_id -> quantity.
// Используется в нагрузке inventory_requested.
func (o *Order) ItemsMap() map[string]int {
	items := make(map[string]int, len(o.Items))
	for i := range o.Items {
		items[o.Items[i].ProductID] += o.Items[i].Quantity
	}
	return items
}

// SetMeta записывает значение в metadata заказа.
func (o *Order) SetMeta(key string, value any) {
	if o.Metadata == nil {
		o.Metadata = make(map[string]any)
	}
	o.Metadata[key] = value
}

// CanTransition проверяет допустимость перехода в указанный статус.
func (o *Order) CanTransition(to OrderStatus) bool {
	for _, allowed := range allowedTransitions[o.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition переводит заказ в новый статус с проверкой допустимости.
func (o *Order) transition(to OrderStatus) error {
	if !o.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.ModifiedAt = time.Now().UTC()
	return nil
}

// RequestPayment переводит заказ CREATED -> PENDING_PAYMENT.
// Вызывается при публикации payment_requested.
func (o *Order) RequestPayment() error {
	return o.transition(OrderStatusPendingPayment)
}

// ConfirmPayment переводит заказ PENDING_PAYMENT -> PAYMENT_CONFIRMED
// и сохраняет payment_id в metadata.
func (o *Order) ConfirmPayment(paymentID string) error {
	if err := o.transition(OrderStatusPaymentConfirmed); err != nil {
		return err
	}
	o.SetMeta(MetaPaymentID, paymentID)
	return nil
}

// RequestInventory переводит заказ PAYMENT_CONFIRMED -> PENDING_INVENTORY.
// Вызывается при публикации inventory_requested.
func (o *Order) RequestInventory() error {
	return o.transition(OrderStatusPendingInventory)
}

// ConfirmInventory переводит заказ PENDING_INVENTORY -> INVENTORY_CONFIRMED
// и сохраняет снимок зарезервированных позиций.
func (o *Order) ConfirmInventory(allocated map[string]int) error {
	if err := o.transition(OrderStatusInventoryConfirmed); err != nil {
		return err
	}
	o.SetMeta(MetaAllocatedItems, allocated)
	return nil
}

// Ship переводит заказ INVENTORY_CONFIRMED -> SHIPPED
// и сохраняет номер отслеживания.
func (o *Order) Ship(trackingNumber string) error {
	if err := o.transition(OrderStatusShipped); err != nil {
		return err
	}
	o.SetMeta(MetaTrackingNumber, trackingNumber)
	return nil
}

// Deliver переводит заказ SHIPPED -> DELIVERED.
func (o *Order) Deliver() error {
	return o.transition(OrderStatusDelivered)
}

// Fail переводит заказ в FAILED с причиной в metadata.
// Допустимо только из PENDING_PAYMENT и PENDING_INVENTORY.
func (o *Order) Fail(metaKey, reason string) error {
	if err := o.transition(OrderStatusFailed); err != nil {
		return err
	}
	o.SetMeta(metaKey, reason)
	return nil
}

// CanCancel проверяет, можно ли отменить заказ.
// Отменить нельзя только отгруженный или доставленный заказ.
func (o *Order) CanCancel() bool {
	return o.Status != OrderStatusShipped && o.Status != OrderStatusDelivered
}

// Cancel отменяет заказ с указанием причины.
// Повторная отмена возвращает ErrOrderAlreadyCancelled — вызывающий
// трактует это как успех без повторного события.
func (o *Order) Cancel(reason string) error {
	if o.Status == OrderStatusCancelled {
		return ErrOrderAlreadyCancelled
	}
	if !o.CanCancel() {
		return ErrOrderShippedOrDelivered
	}
	o.Status = OrderStatusCancelled
	o.ModifiedAt = time.Now().UTC()
	o.SetMeta(MetaCancellationReason, reason)
	return nil
}

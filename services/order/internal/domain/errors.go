// Package domain содержит бизнес-сущности и доменные ошибки Order Service.
package domain

import "errors"

// Доменные ошибки Order Service.
// Используются для передачи бизнес-ошибок между слоями приложения.
var (
	// ErrOrderNotFound возвращается, когда заказ не найден в базе данных.
	ErrOrderNotFound = errors.New("заказ не найден")

	// ErrEmptyOrderItems возвращается при попытке создать заказ без позиций.
	ErrEmptyOrderItems = errors.New("заказ должен содержать хотя бы одну позицию")

	// ErrInvalidCustomerID возвращается при пустом идентификаторе покупателя.
	ErrInvalidCustomerID = errors.New("некорректный идентификатор покупателя")

	// ErrInvalidProductID возвращается при пустом идентификаторе товара.
	ErrInvalidProductID = errors.New("некорректный идентификатор товара")

	// ErrInvalidQuantity возвращается, когда количество товара меньше единицы.
	ErrInvalidQuantity = errors.New("количество должно быть больше нуля")

	// ErrInvalidPrice возвращается, когда цена товара отрицательна.
	ErrInvalidPrice = errors.New("цена не может быть отрицательной")

	// ErrInvalidTransition возвращается при недопустимом переходе статуса заказа.
	ErrInvalidTransition = errors.New("недопустимый переход статуса заказа")

	// ErrOrderAlreadyCancelled возвращается при повторной отмене заказа.
	// Обрабатывается сервисом как успех без повторного события.
	ErrOrderAlreadyCancelled = errors.New("заказ уже отменён")

	// ErrOrderShippedOrDelivered возвращается при попытке отменить отгруженный
	// или доставленный заказ. Текст — часть контракта API, наружу уходит как есть.
	ErrOrderShippedOrDelivered = errors.New("Cannot cancel an order that has been shipped or delivered")
)

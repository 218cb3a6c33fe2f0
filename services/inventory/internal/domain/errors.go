package domain

import "errors"

// Доменные ошибки Inventory Service.
var (
	// ErrProductNotFound — товар не найден.
	ErrProductNotFound = errors.New("товар не найден")

	// ErrDuplicateSKU — товар с таким SKU уже существует.
	ErrDuplicateSKU = errors.New("товар с таким SKU уже существует")

	// ErrInsufficientStock — недостаточно товара на складе.
	ErrInsufficientStock = errors.New("недостаточно товара на складе")

	// ErrInvalidProductName — название товара обязательно.
	ErrInvalidProductName = errors.New("название товара обязательно")

	// ErrInvalidSKU — SKU товара обязателен.
	ErrInvalidSKU = errors.New("SKU товара обязателен")

	// ErrInvalidPrice — цена не может быть отрицательной.
	ErrInvalidPrice = errors.New("цена не может быть отрицательной")

	// ErrInvalidQuantity — количество не может быть отрицательным.
	ErrInvalidQuantity = errors.New("количество не может быть отрицательным")
)

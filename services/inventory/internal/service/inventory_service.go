// Package service содержит бизнес-логику Inventory Service.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"

	"example.com/order-saga/pkg/events"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/inventory/internal/domain"
	"example.com/order-saga/services/inventory/internal/repository"
)

// AllocationResult — результат команды аллокации для синхронного API.
type AllocationResult struct {
	Success        bool              `json:"success"`
	OrderID        string            `json:"order_id"`
	AllocatedItems map[string]int    `json:"allocated_items"`
	FailedItems    map[string]string `json:"failed_items"`
	Message        string            `json:"message"`
}

// InventoryService определяет бизнес-операции Inventory Service.
type InventoryService interface {
	// AllocateInventory резервирует товары для заказа и публикует
	// inventory_allocated. При частичном провале вся аллокация
	// откатывается и дополнительно публикуется inventory_released.
	// Идемпотентен по (order_id, saga_id).
	AllocateInventory(ctx context.Context, orderID, sagaID string, items map[string]int) (*AllocationResult, error)

	// CreateProduct создаёт товар.
	CreateProduct(ctx context.Context, product *domain.Product) error

	// GetProduct возвращает товар по ID.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// ListProducts возвращает все товары.
	ListProducts(ctx context.Context) ([]*domain.Product, error)
}

// inventoryService — реализация InventoryService.
type inventoryService struct {
	products    repository.ProductRepository
	allocations repository.AllocationRepository
}

// NewInventoryService создаёт новый сервис склада.
func NewInventoryService(products repository.ProductRepository, allocations repository.AllocationRepository) InventoryService {
	return &inventoryService{
		products:    products,
		allocations: allocations,
	}
}

// AllocateInventory резервирует товары заказа.
//
// Товары обходятся в стабильном порядке (сортировка по product_id),
// списание каждого — атомарный условный UPDATE. Любой провал откатывает
// уже списанное, итоговый остаток равен исходному.
func (s *inventoryService) AllocateInventory(ctx context.Context, orderID, sagaID string, items map[string]int) (*AllocationResult, error) {
	log := logger.FromContext(ctx)

	// Повторная доставка команды: переиздаём прежний результат
	if sagaID != "" {
		prior, err := s.allocations.Get(ctx, orderID, sagaID)
		if err == nil {
			log.Info().
				Str("order_id", orderID).
				Str("saga_id", sagaID).
				Msg("Аллокация уже выполнена, переиздаём результат")
			return s.republish(ctx, prior)
		}
		if !errors.Is(err, repository.ErrAllocationNotFound) {
			return nil, err
		}
	}

	productIDs := make([]string, 0, len(items))
	for pid := range items {
		productIDs = append(productIDs, pid)
	}
	sort.Strings(productIDs)

	allocated := make(map[string]int)
	failed := make(map[string]string)

	for _, pid := range productIDs {
		quantity := items[pid]
		err := s.products.AllocateStock(ctx, pid, quantity)
		switch {
		case err == nil:
			allocated[pid] = quantity
		case errors.Is(err, domain.ErrProductNotFound):
			failed[pid] = fmt.Sprintf("Product %s not found", pid)
		case errors.Is(err, domain.ErrInsufficientStock):
			failed[pid] = fmt.Sprintf("Insufficient quantity for product %s", pid)
		default:
			// Транзиентный сбой БД: откатываем списанное и отдаём на повтор
			relErr := s.releaseAll(ctx, allocated)
			return nil, errors.Join(fmt.Errorf("ошибка списания товара %s: %w", pid, err), relErr)
		}
	}

	success := len(failed) == 0

	message := "Inventory allocated successfully"
	if !success {
		// Причины провала сериализуются в message события
		data, err := json.Marshal(failed)
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации причин провала: %w", err)
		}
		message = string(data)
	}

	alloc := &domain.Allocation{
		OrderID:   orderID,
		Success:   success,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if sagaID != "" {
		alloc.SagaID = &sagaID
	}
	if success {
		alloc.AllocatedItems = allocated
	}

	records, err := s.buildEvents(alloc, allocated)
	if err != nil {
		return nil, err
	}

	// Компенсация провала едет той же транзакцией, что и событие:
	// inventory_allocated(success=false) не публикуется, пока товар не возвращён
	var releases map[string]int
	if !success {
		releases = allocated
	}

	inserted, err := s.allocations.Save(ctx, alloc, records, releases)
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения аллокации: %w", err)
	}
	if !inserted {
		// Гонка двух доставок: наш результат проиграл — возвращаем своё списанное
		if relErr := s.releaseAll(ctx, allocated); relErr != nil {
			return nil, relErr
		}
		prior, err := s.allocations.Get(ctx, orderID, sagaID)
		if err != nil {
			return nil, err
		}
		return toResult(prior, nil), nil
	}

	metrics.RecordEventPublished("inventory", events.TypeInventoryAllocated)
	if !success && len(allocated) > 0 {
		metrics.RecordEventPublished("inventory", events.TypeInventoryReleased)
	}

	log.Info().
		Str("order_id", orderID).
		Bool("success", success).
		Int("allocated", len(allocated)).
		Int("failed", len(failed)).
		Msg("Аллокация выполнена")

	return toResult(alloc, failed), nil
}

// republish переиздаёт inventory_allocated для уже выполненной аллокации.
func (s *inventoryService) republish(ctx context.Context, alloc *domain.Allocation) (*AllocationResult, error) {
	ev := allocatedEvent(alloc)
	rec, err := outbox.FromEvent(outbox.AggregateInventory, alloc.OrderID, ev)
	if err != nil {
		return nil, err
	}
	if err := s.products.InsertOutbox(ctx, []*outbox.Outbox{rec}); err != nil {
		return nil, fmt.Errorf("ошибка переиздания результата аллокации: %w", err)
	}
	metrics.RecordEventPublished("inventory", events.TypeInventoryAllocated)
	return toResult(alloc, nil), nil
}

// buildEvents строит события исхода аллокации:
// inventory_allocated всегда, inventory_released — при откате.
func (s *inventoryService) buildEvents(alloc *domain.Allocation, rolledBack map[string]int) ([]*outbox.Outbox, error) {
	records := make([]*outbox.Outbox, 0, 2)

	rec, err := outbox.FromEvent(outbox.AggregateInventory, alloc.OrderID, allocatedEvent(alloc))
	if err != nil {
		return nil, err
	}
	records = append(records, rec)

	if !alloc.Success && len(rolledBack) > 0 {
		released := events.InventoryReleased{
			Header:  events.NewHeader(events.TypeInventoryReleased, derefSagaID(alloc)),
			OrderID: alloc.OrderID,
			Items:   rolledBack,
		}
		rec, err := outbox.FromEvent(outbox.AggregateInventory, alloc.OrderID, released)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// releaseAll возвращает на склад всё списанное в рамках команды.
// Каждый возврат повторяется с backoff: неотданный остаток — это
// потерянный товар, поэтому провал возврата всплывает ошибкой,
// а команда уходит на повторную доставку.
func (s *inventoryService) releaseAll(ctx context.Context, allocated map[string]int) error {
	log := logger.FromContext(ctx)

	var firstErr error
	for pid, quantity := range allocated {
		backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if relErr := s.products.ReleaseStock(ctx, pid, quantity); relErr != nil {
				log.Warn().Err(relErr).
					Str("product_id", pid).
					Int("quantity", quantity).
					Msg("Ошибка возврата остатка, повтор")
				return retry.RetryableError(relErr)
			}
			return nil
		})
		if err != nil {
			log.Error().Err(err).
				Str("product_id", pid).
				Int("quantity", quantity).
				Msg("Не удалось вернуть остаток при откате аллокации")
			if firstErr == nil {
				firstErr = fmt.Errorf("ошибка возврата остатка товара %s: %w", pid, err)
			}
		}
	}
	return firstErr
}

// CreateProduct создаёт товар.
func (s *inventoryService) CreateProduct(ctx context.Context, product *domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	return s.products.Create(ctx, product)
}

// GetProduct возвращает товар по ID.
func (s *inventoryService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.products.GetByID(ctx, productID)
}

// ListProducts возвращает все товары.
func (s *inventoryService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.products.List(ctx)
}

func allocatedEvent(alloc *domain.Allocation) events.InventoryAllocated {
	allocatedItems := alloc.AllocatedItems
	if allocatedItems == nil {
		allocatedItems = map[string]int{}
	}
	return events.InventoryAllocated{
		Header:         events.NewHeader(events.TypeInventoryAllocated, derefSagaID(alloc)),
		OrderID:        alloc.OrderID,
		Success:        alloc.Success,
		Message:        alloc.Message,
		AllocatedItems: allocatedItems,
	}
}

func toResult(alloc *domain.Allocation, failed map[string]string) *AllocationResult {
	allocated := alloc.AllocatedItems
	if allocated == nil {
		allocated = map[string]int{}
	}
	if failed == nil {
		failed = map[string]string{}
	}

	// В событии message несёт сериализованные причины провала,
	// синхронный ответ — человекочитаемый итог
	message := "Inventory allocated successfully"
	if !alloc.Success {
		message = "Failed to allocate inventory"
	}

	return &AllocationResult{
		Success:        alloc.Success,
		OrderID:        alloc.OrderID,
		AllocatedItems: allocated,
		FailedItems:    failed,
		Message:        message,
	}
}

func derefSagaID(alloc *domain.Allocation) string {
	if alloc.SagaID != nil {
		return *alloc.SagaID
	}
	return ""
}

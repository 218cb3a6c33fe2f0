package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/order-saga/pkg/events"
	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/services/inventory/internal/domain"
	"example.com/order-saga/services/inventory/internal/repository"
	"example.com/order-saga/services/inventory/internal/service"
)

// === Моки репозиториев ===

type stubProductRepo struct {
	stock         map[string]int
	allocateErr   map[string]error
	releaseErr    map[string]error
	releaseCalls  map[string]int
	outboxRecords []*outbox.Outbox
}

func newStubProductRepo(stock map[string]int) *stubProductRepo {
	return &stubProductRepo{
		stock:        stock,
		allocateErr:  map[string]error{},
		releaseErr:   map[string]error{},
		releaseCalls: map[string]int{},
	}
}

func (s *stubProductRepo) Create(ctx context.Context, product *domain.Product) error { return nil }

func (s *stubProductRepo) GetByID(ctx context.Context, productID string) (*domain.Product, error) {
	return nil, domain.ErrProductNotFound
}

func (s *stubProductRepo) List(ctx context.Context) ([]*domain.Product, error) { return nil, nil }

func (s *stubProductRepo) AllocateStock(ctx context.Context, productID string, quantity int) error {
	if err, ok := s.allocateErr[productID]; ok {
		return err
	}
	available, ok := s.stock[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if available < quantity {
		return domain.ErrInsufficientStock
	}
	s.stock[productID] = available - quantity
	return nil
}

func (s *stubProductRepo) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	if err, ok := s.releaseErr[productID]; ok {
		return err
	}
	s.stock[productID] += quantity
	s.releaseCalls[productID] += quantity
	return nil
}

func (s *stubProductRepo) InsertOutbox(ctx context.Context, records []*outbox.Outbox) error {
	s.outboxRecords = append(s.outboxRecords, records...)
	return nil
}

type stubAllocationRepo struct {
	products  *stubProductRepo
	stored    map[string]*domain.Allocation
	saved     []*outbox.Outbox
	releases  map[string]int
	savedRace bool // имитация проигранной гонки Save
}

func newStubAllocationRepo(products *stubProductRepo) *stubAllocationRepo {
	return &stubAllocationRepo{
		products: products,
		stored:   map[string]*domain.Allocation{},
	}
}

func allocKey(orderID, sagaID string) string { return orderID + "|" + sagaID }

func (s *stubAllocationRepo) Get(ctx context.Context, orderID, sagaID string) (*domain.Allocation, error) {
	if alloc, ok := s.stored[allocKey(orderID, sagaID)]; ok {
		return alloc, nil
	}
	return nil, repository.ErrAllocationNotFound
}

func (s *stubAllocationRepo) Save(ctx context.Context, alloc *domain.Allocation, records []*outbox.Outbox, releases map[string]int) (bool, error) {
	if s.savedRace {
		// Проигранная гонка: транзакция не пишет ничего, включая возвраты
		return false, nil
	}
	sagaID := ""
	if alloc.SagaID != nil {
		sagaID = *alloc.SagaID
	}
	s.stored[allocKey(alloc.OrderID, sagaID)] = alloc
	s.saved = append(s.saved, records...)

	// Возвраты применяются той же транзакцией, что и событие
	s.releases = releases
	for pid, quantity := range releases {
		s.products.stock[pid] += quantity
	}
	return true, nil
}

// === Хелперы ===

func decodeAllocated(t *testing.T, rec *outbox.Outbox) *events.InventoryAllocated {
	t.Helper()
	e, err := events.Unmarshal(rec.Payload)
	require.NoError(t, err)
	allocated, ok := e.(*events.InventoryAllocated)
	require.True(t, ok, "ожидалось inventory_allocated, получено %s", e.Type())
	return allocated
}

func eventTypes(records []*outbox.Outbox) []string {
	types := make([]string, len(records))
	for i, rec := range records {
		types[i] = rec.EventType
	}
	return types
}

// === Тесты ===

func TestAllocateInventory_Success(t *testing.T) {
	products := newStubProductRepo(map[string]int{"p1": 100, "p2": 50})
	allocations := newStubAllocationRepo(products)
	svc := service.NewInventoryService(products, allocations)

	result, err := svc.AllocateInventory(context.Background(), "order-1", "saga-1", map[string]int{
		"p1": 2,
		"p2": 1,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "order-1", result.OrderID)
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, result.AllocatedItems)
	assert.Empty(t, result.FailedItems)
	assert.Equal(t, "Inventory allocated successfully", result.Message)

	// Остатки списаны
	assert.Equal(t, 98, products.stock["p1"])
	assert.Equal(t, 49, products.stock["p2"])

	// Единственное событие — inventory_allocated с успехом
	require.Equal(t, []string{events.TypeInventoryAllocated}, eventTypes(allocations.saved))
	ev := decodeAllocated(t, allocations.saved[0])
	assert.True(t, ev.Success)
	assert.Equal(t, "saga-1", ev.Saga())
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, ev.AllocatedItems)
	assert.Equal(t, events.TopicInventory, allocations.saved[0].Topic)
	assert.Equal(t, "saga-1", allocations.saved[0].MessageKey)
}

func TestAllocateInventory_InsufficientStock(t *testing.T) {
	products := newStubProductRepo(map[string]int{"p1": 100, "p2": 1})
	allocations := newStubAllocationRepo(products)
	svc := service.NewInventoryService(products, allocations)

	result, err := svc.AllocateInventory(context.Background(), "order-1", "saga-1", map[string]int{
		"p1": 2,
		"p2": 5,
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.AllocatedItems)
	assert.Contains(t, result.FailedItems["p2"], "Insufficient quantity for product p2")
	assert.Equal(t, "Failed to allocate inventory", result.Message)

	// Компенсация вернула списанное той же транзакцией, что и события:
	// остатки как до команды
	assert.Equal(t, 100, products.stock["p1"])
	assert.Equal(t, 1, products.stock["p2"])
	assert.Equal(t, map[string]int{"p1": 2}, allocations.releases)

	// inventory_allocated (провал) + inventory_released (откат)
	require.Equal(t,
		[]string{events.TypeInventoryAllocated, events.TypeInventoryReleased},
		eventTypes(allocations.saved))

	ev := decodeAllocated(t, allocations.saved[0])
	assert.False(t, ev.Success)
	assert.Empty(t, ev.AllocatedItems)
	assert.Contains(t, ev.Message, "Insufficient quantity for product p2")

	released, err := events.Unmarshal(allocations.saved[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 2}, released.(*events.InventoryReleased).Items)
}

func TestAllocateInventory_ProductNotFound(t *testing.T) {
	products := newStubProductRepo(map[string]int{"p1": 100})
	allocations := newStubAllocationRepo(products)
	svc := service.NewInventoryService(products, allocations)

	result, err := svc.AllocateInventory(context.Background(), "order-1", "saga-1", map[string]int{
		"missing": 1,
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.FailedItems["missing"], "Product missing not found")
}

func TestAllocateInventory_DuplicateDelivery(t *testing.T) {
	products := newStubProductRepo(map[string]int{"p1": 100})
	allocations := newStubAllocationRepo(products)
	sagaID := "saga-1"
	allocations.stored[allocKey("order-1", sagaID)] = &domain.Allocation{
		OrderID:        "order-1",
		SagaID:         &sagaID,
		Success:        true,
		AllocatedItems: map[string]int{"p1": 3},
		Message:        "Inventory allocated successfully",
	}

	svc := service.NewInventoryService(products, allocations)

	result, err := svc.AllocateInventory(context.Background(), "order-1", "saga-1", map[string]int{
		"p1": 3,
	})
	require.NoError(t, err)

	// Остатки не трогаются повторно, результат переиздан
	assert.True(t, result.Success)
	assert.Equal(t, map[string]int{"p1": 3}, result.AllocatedItems)
	assert.Equal(t, 100, products.stock["p1"])

	require.Len(t, products.outboxRecords, 1)
	ev := decodeAllocated(t, products.outboxRecords[0])
	assert.True(t, ev.Success)
	assert.Equal(t, map[string]int{"p1": 3}, ev.AllocatedItems)
}

func TestAllocateInventory_SaveRace(t *testing.T) {
	products := newStubProductRepo(map[string]int{"p1": 100})
	allocations := newStubAllocationRepo(products)
	allocations.savedRace = true

	// Победитель гонки уже записал свой результат
	sagaID := "saga-1"
	allocations.stored[allocKey("order-1", sagaID)] = &domain.Allocation{
		OrderID:        "order-1",
		SagaID:         &sagaID,
		Success:        true,
		AllocatedItems: map[string]int{"p1": 3},
	}

	svc := service.NewInventoryService(products, allocations)

	result, err := svc.AllocateInventory(context.Background(), "order-1", "saga-1", map[string]int{
		"p1": 3,
	})
	require.NoError(t, err)

	// Проигравший вернул своё списание, итоговый остаток не изменился
	assert.Equal(t, 100, products.stock["p1"])
	assert.Equal(t, 3, products.releaseCalls["p1"])

	// Ответ — результат победителя
	assert.True(t, result.Success)
	assert.Equal(t, map[string]int{"p1": 3}, result.AllocatedItems)
}

func TestAllocateInventory_SaveRace_ReleaseFails(t *testing.T) {
	products := newStubProductRepo(map[string]int{"p1": 100})
	products.releaseErr["p1"] = errors.New("connection refused")
	allocations := newStubAllocationRepo(products)
	allocations.savedRace = true

	sagaID := "saga-1"
	allocations.stored[allocKey("order-1", sagaID)] = &domain.Allocation{
		OrderID:        "order-1",
		SagaID:         &sagaID,
		Success:        true,
		AllocatedItems: map[string]int{"p1": 3},
	}

	svc := service.NewInventoryService(products, allocations)

	_, err := svc.AllocateInventory(context.Background(), "order-1", "saga-1", map[string]int{
		"p1": 3,
	})

	// Невозвращённый остаток всплывает ошибкой, команда уходит на повтор
	require.Error(t, err)
}

func TestAllocateInventory_TransientError(t *testing.T) {
	products := newStubProductRepo(map[string]int{"p1": 100, "p2": 50})
	products.allocateErr["p2"] = errors.New("connection refused")
	allocations := newStubAllocationRepo(products)
	svc := service.NewInventoryService(products, allocations)

	_, err := svc.AllocateInventory(context.Background(), "order-1", "saga-1", map[string]int{
		"p1": 2,
		"p2": 1,
	})
	require.Error(t, err)

	// Списанное до сбоя возвращено, результат не сохранён
	assert.Equal(t, 100, products.stock["p1"])
	assert.Empty(t, allocations.saved)
}

func TestCreateProduct_Validation(t *testing.T) {
	products := newStubProductRepo(map[string]int{})
	svc := service.NewInventoryService(products, newStubAllocationRepo(products))

	product := domain.NewProduct("", "", "SKU-1", 10, 5)
	err := svc.CreateProduct(context.Background(), product)
	assert.ErrorIs(t, err, domain.ErrInvalidProductName)
}

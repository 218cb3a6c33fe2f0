// Package handler содержит HTTP обработчики REST API Inventory Service.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/services/inventory/internal/domain"
	"example.com/order-saga/services/inventory/internal/service"
)

// InventoryHandler — обработчик склада.
type InventoryHandler struct {
	inventoryService service.InventoryService
}

// NewInventoryHandler создаёт новый обработчик склада.
func NewInventoryHandler(inventoryService service.InventoryService) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
	}
}

// === Request/Response DTOs ===

// ErrorResponse — тело ошибки API.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ProductRequest — запрос на создание товара.
type ProductRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	SKU         string         `json:"sku" binding:"required"`
	Price       float64        `json:"price" binding:"min=0"`
	Quantity    int            `json:"quantity" binding:"min=0"`
	Metadata    map[string]any `json:"metadata"`
}

// ProductResponse — снимок товара в ответе.
type ProductResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	SKU         string         `json:"sku"`
	Price       float64        `json:"price"`
	Quantity    int            `json:"quantity"`
	Status      string         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// AllocateRequest — синхронный запрос аллокации.
// Зеркалирует команду inventory_requested.
type AllocateRequest struct {
	OrderID string         `json:"order_id" binding:"required"`
	SagaID  string         `json:"saga_id"`
	Items   map[string]int `json:"items" binding:"required,min=1"`
}

// ListProductsResponse — ответ на запрос списка товаров.
type ListProductsResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
}

// === Handlers ===

// CreateProduct создаёт новый товар.
// POST /products
func (h *InventoryHandler) CreateProduct(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос на создание товара")
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		return
	}

	product := domain.NewProduct(req.Name, req.Description, req.SKU, req.Price, req.Quantity)
	product.Metadata = req.Metadata

	if err := h.inventoryService.CreateProduct(ctx, product); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateSKU):
			c.JSON(http.StatusConflict, ErrorResponse{Detail: "Product with SKU " + req.SKU + " already exists"})
		case isValidationError(err):
			c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		default:
			log.Error().Err(err).Str("sku", req.SKU).Msg("Ошибка создания товара")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		}
		return
	}

	c.JSON(http.StatusCreated, productToResponse(product))
}

// GetProduct возвращает товар по ID.
// GET /products/:id
func (h *InventoryHandler) GetProduct(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	productID := c.Param("id")

	product, err := h.inventoryService.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Product " + productID + " not found"})
			return
		}
		log.Error().Err(err).Str("product_id", productID).Msg("Ошибка получения товара")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		return
	}

	c.JSON(http.StatusOK, productToResponse(product))
}

// ListProducts возвращает все товары.
// GET /products
func (h *InventoryHandler) ListProducts(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	products, err := h.inventoryService.ListProducts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка получения списка товаров")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		return
	}

	resp := ListProductsResponse{
		Products: make([]ProductResponse, len(products)),
		Total:    len(products),
	}
	for i, product := range products {
		resp.Products[i] = productToResponse(product)
	}

	c.JSON(http.StatusOK, resp)
}

// AllocateInventory — синхронный вариант команды аллокации.
// POST /inventory/allocate
func (h *InventoryHandler) AllocateInventory(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос аллокации")
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		return
	}

	result, err := h.inventoryService.AllocateInventory(ctx, req.OrderID, req.SagaID, req.Items)
	if err != nil {
		log.Error().Err(err).Str("order_id", req.OrderID).Msg("Ошибка аллокации")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// === Helper functions ===

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidProductName) ||
		errors.Is(err, domain.ErrInvalidSKU) ||
		errors.Is(err, domain.ErrInvalidPrice) ||
		errors.Is(err, domain.ErrInvalidQuantity)
}

func productToResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		SKU:         p.SKU,
		Price:       p.Price,
		Quantity:    p.Quantity,
		Status:      string(p.Status()),
		Metadata:    p.Metadata,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

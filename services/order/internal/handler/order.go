// Package handler содержит HTTP обработчики REST API Order Service.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/services/order/internal/domain"
	"example.com/order-saga/services/order/internal/saga"
	"example.com/order-saga/services/order/internal/service"
)

// OrderHandler — обработчик заказов.
type OrderHandler struct {
	orderService service.OrderService
}

// NewOrderHandler создаёт новый обработчик заказов.
func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// === Request/Response DTOs ===

// ErrorResponse — тело ошибки API.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// CreateOrderRequest — запрос на создание заказа.
type CreateOrderRequest struct {
	CustomerID string                   `json:"customer_id" binding:"required"`
	Items      []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// CreateOrderItemRequest — позиция в запросе на создание заказа.
type CreateOrderItemRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,min=1"`
	UnitPrice float64 `json:"unit_price" binding:"min=0"`
}

// CreateOrderResponse — ответ на создание заказа.
type CreateOrderResponse struct {
	OrderID string `json:"order_id"`
	SagaID  string `json:"saga_id"`
	Status  string `json:"status"`
}

// OrderItemResponse — позиция заказа в ответе.
type OrderItemResponse struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// SagaEventResponse — событие саги в ответе.
type SagaEventResponse struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	EventData json.RawMessage `json:"event_data"`
}

// OrderResponse — снимок заказа в ответе.
type OrderResponse struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customer_id"`
	Status      string              `json:"status"`
	TotalAmount float64             `json:"total_amount"`
	Items       []OrderItemResponse `json:"items"`
	SagaID      *string             `json:"saga_id,omitempty"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	CreatedAt   string              `json:"created_at"`
	ModifiedAt  string              `json:"modified_at"`
	SagaHistory []SagaEventResponse `json:"saga_history,omitempty"`
}

// CancelOrderRequest — запрос на отмену заказа.
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required,min=1"`
}

// CancelOrderResponse — ответ на отмену заказа.
type CancelOrderResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// CustomerOrdersResponse — ответ на запрос заказов покупателя.
type CustomerOrdersResponse struct {
	CustomerID  string          `json:"customer_id"`
	Orders      []OrderResponse `json:"orders"`
	TotalOrders int             `json:"total_orders"`
}

// === Handlers ===

// CreateOrder создаёт новый заказ и запускает сагу оформления.
// POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос на создание заказа")
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		return
	}

	items := make([]domain.OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	order, err := h.orderService.CreateOrder(ctx, req.CustomerID, items)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		return
	}

	c.JSON(http.StatusCreated, CreateOrderResponse{
		OrderID: order.ID,
		SagaID:  derefString(order.SagaID),
		Status:  string(order.Status),
	})
}

// GetOrder возвращает заказ по ID.
// GET /orders/:id?include_saga_history=bool
func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	orderID := c.Param("id")

	order, err := h.orderService.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Order with ID " + orderID + " not found"})
			return
		}
		log.Error().Err(err).Str("order_id", orderID).Msg("Ошибка получения заказа")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		return
	}

	resp := orderToResponse(order)

	includeHistory, _ := strconv.ParseBool(c.Query("include_saga_history"))
	if includeHistory {
		history, err := h.orderService.GetSagaHistory(ctx, order)
		if err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("Ошибка получения истории саги")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
			return
		}
		resp.SagaHistory = sagaHistoryToResponse(history)
	}

	c.JSON(http.StatusOK, resp)
}

// CancelOrder отменяет заказ.
// POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	orderID := c.Param("id")

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос на отмену заказа")
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		return
	}

	order, err := h.orderService.CancelOrder(ctx, orderID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Order with ID " + orderID + " not found"})
		case errors.Is(err, domain.ErrOrderShippedOrDelivered):
			c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		default:
			log.Error().Err(err).Str("order_id", orderID).Msg("Ошибка отмены заказа")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		}
		return
	}

	c.JSON(http.StatusOK, CancelOrderResponse{
		Success: true,
		Status:  string(order.Status),
	})
}

// GetCustomerOrders возвращает заказы покупателя, новые первыми.
// GET /customers/:id/orders
func (h *OrderHandler) GetCustomerOrders(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	customerID := c.Param("id")

	orders, err := h.orderService.GetCustomerOrders(ctx, customerID)
	if err != nil {
		log.Error().Err(err).Str("customer_id", customerID).Msg("Ошибка получения заказов покупателя")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		return
	}

	resp := CustomerOrdersResponse{
		CustomerID:  customerID,
		Orders:      make([]OrderResponse, len(orders)),
		TotalOrders: len(orders),
	}
	for i, order := range orders {
		resp.Orders[i] = orderToResponse(order)
	}

	c.JSON(http.StatusOK, resp)
}

// === Helper functions ===

// isValidationError сообщает, является ли ошибка ошибкой валидации заказа.
func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrEmptyOrderItems) ||
		errors.Is(err, domain.ErrInvalidCustomerID) ||
		errors.Is(err, domain.ErrInvalidProductID) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrInvalidPrice)
}

// orderToResponse преобразует domain.Order в OrderResponse.
func orderToResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	return OrderResponse{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		Items:       items,
		SagaID:      o.SagaID,
		Metadata:    o.Metadata,
		CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339),
		ModifiedAt:  o.ModifiedAt.UTC().Format(time.RFC3339),
	}
}

// sagaHistoryToResponse преобразует события саги в DTO ответа.
func sagaHistoryToResponse(events []*saga.Event) []SagaEventResponse {
	resp := make([]SagaEventResponse, len(events))
	for i, e := range events {
		resp[i] = SagaEventResponse{
			EventID:   e.EventID,
			EventType: e.EventType,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			EventData: json.RawMessage(e.EventData),
		}
	}
	return resp
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

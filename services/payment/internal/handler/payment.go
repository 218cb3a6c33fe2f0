// Package handler содержит HTTP обработчики REST API Payment Service.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/services/payment/internal/domain"
	"example.com/order-saga/services/payment/internal/service"
)

// PaymentHandler — обработчик платежей.
type PaymentHandler struct {
	paymentService service.PaymentService
}

// NewPaymentHandler создаёт новый обработчик платежей.
func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// ErrorResponse — тело ошибки API.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// PaymentResponse — снимок платежа в ответе.
type PaymentResponse struct {
	ID            string         `json:"id"`
	OrderID       string         `json:"order_id"`
	CustomerID    string         `json:"customer_id"`
	Amount        float64        `json:"amount"`
	Currency      string         `json:"currency"`
	Status        string         `json:"status"`
	PaymentMethod string         `json:"payment_method"`
	TransactionID *string        `json:"transaction_id,omitempty"`
	SagaID        *string        `json:"saga_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

// GetPaymentByOrder возвращает последний платёж заказа.
// GET /payments/order/:order_id
func (h *PaymentHandler) GetPaymentByOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	orderID := c.Param("order_id")

	payment, err := h.paymentService.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Payment for order " + orderID + " not found"})
			return
		}
		log.Error().Err(err).Str("order_id", orderID).Msg("Ошибка получения платежа")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		return
	}

	c.JSON(http.StatusOK, PaymentResponse{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		CustomerID:    payment.CustomerID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Status:        string(payment.Status),
		PaymentMethod: string(payment.PaymentMethod),
		TransactionID: payment.TransactionID,
		SagaID:        payment.SagaID,
		Metadata:      payment.Metadata,
		CreatedAt:     payment.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     payment.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/pkg/middleware"
	"example.com/order-saga/services/payment/internal/service"
)

// ReadinessChecker — функция проверки готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	PaymentService service.PaymentService
	ReadinessCheck ReadinessChecker
	Debug          bool
}

// Router — конфигурация роутера Payment Service.
type Router struct {
	engine         *gin.Engine
	readinessCheck ReadinessChecker
}

// NewRouter создаёт и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(middleware.Recovery())
	engine.Use(middleware.Tracing())
	engine.Use(otelgin.Middleware("payment-service"))
	engine.Use(metrics.GinMetricsMiddleware("payment"))

	r := &Router{
		engine:         engine,
		readinessCheck: cfg.ReadinessCheck,
	}

	r.setupRoutes(cfg.PaymentService)
	return r
}

// setupRoutes настраивает все маршруты API.
func (r *Router) setupRoutes(paymentService service.PaymentService) {
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/healthz", r.livenessCheck)
	r.engine.GET("/readyz", r.readinessCheckHandler)

	paymentHandler := NewPaymentHandler(paymentService)
	r.engine.GET("/payments/order/:order_id", paymentHandler.GetPaymentByOrder)
}

// Engine возвращает Gin engine для запуска сервера.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "payment-service",
	})
}

func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (r *Router) readinessCheckHandler(c *gin.Context) {
	if r.readinessCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := r.readinessCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

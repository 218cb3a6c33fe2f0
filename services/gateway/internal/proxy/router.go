package proxy

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/pkg/middleware"
)

// RouterConfig — параметры для создания роутера gateway.
type RouterConfig struct {
	Proxy *Proxy
	Debug bool
}

// NewRouter создаёт HTTP роутер API Gateway.
// Все маршруты, кроме служебных, пробрасываются через Proxy.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(middleware.Recovery())
	engine.Use(middleware.Tracing())
	engine.Use(otelgin.Middleware("api-gateway"))
	engine.Use(metrics.GinMetricsMiddleware("gateway"))

	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":            "Welcome to the Microservices API Gateway",
			"available_services": cfg.Proxy.Prefixes(),
		})
	})

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"services": cfg.Proxy.ServiceURLs(),
		})
	})

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	})

	// Всё остальное — проксирование по префиксу пути
	engine.NoRoute(cfg.Proxy.Handle)

	return engine
}

// Package proxy реализует маршрутизацию API Gateway: входящие запросы
// пробрасываются соответствующему микросервису по префиксу пути.
// Каждый upstream защищён собственным Circuit Breaker.
package proxy

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/order-saga/pkg/circuitbreaker"
	"example.com/order-saga/pkg/config"
	"example.com/order-saga/pkg/logger"
)

// ErrorResponse — тело ошибки API.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// upstream — один целевой сервис за gateway.
type upstream struct {
	name    string
	baseURL string
	breaker *circuitbreaker.Breaker
}

// Proxy пробрасывает запросы к микросервисам по префиксу пути.
type Proxy struct {
	client *http.Client
	routes map[string]*upstream

	order     *upstream
	payment   *upstream
	inventory *upstream
}

// New создаёт прокси с маршрутами по конфигурации сервисов.
// client может быть nil — тогда используется клиент с таймаутом 30s.
func New(cfg config.ServicesConfig, client *http.Client) *Proxy {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	order := newUpstream("order-service", cfg.OrderURL)
	payment := newUpstream("payment-service", cfg.PaymentURL)
	inventory := newUpstream("inventory-service", cfg.InventoryURL)

	return &Proxy{
		client: client,
		routes: map[string]*upstream{
			"orders": order,
			// Заказы покупателя живут в Order Service
			"customers": order,
			"payments":  payment,
			"inventory": inventory,
		},
		order:     order,
		payment:   payment,
		inventory: inventory,
	}
}

func newUpstream(name, baseURL string) *upstream {
	return &upstream{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		breaker: circuitbreaker.New(name),
	}
}

// Handle пробрасывает запрос к upstream, определённому первым сегментом пути.
func (p *Proxy) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	prefix := pathPrefix(c.Request.URL.Path)
	target, ok := p.routes[prefix]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Service '" + prefix + "' not found"})
		return
	}

	targetURL := target.baseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, c.Request.Method, targetURL, c.Request.Body)
	if err != nil {
		log.Error().Err(err).Str("target", targetURL).Msg("Ошибка построения запроса к upstream")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Внутренняя ошибка сервера"})
		return
	}

	// Заголовки пробрасываются как есть, кроме Host
	copyHeaders(req.Header, c.Request.Header)
	req.Host = ""

	// Транспортные ошибки учитываются в статистике breaker;
	// ответы upstream (включая 5xx) проходят как есть
	result, err := target.breaker.Do(func() (any, error) {
		return p.client.Do(req)
	})
	if err != nil {
		if circuitbreaker.IsOpen(err) {
			log.Warn().Str("upstream", target.name).Msg("Запрос отклонён открытым Circuit Breaker")
		} else {
			log.Error().Err(err).
				Str("upstream", target.name).
				Str("target", targetURL).
				Msg("Ошибка проксирования запроса")
		}
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Detail: "Service '" + target.name + "' is unavailable"})
		return
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	copyHeaders(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		log.Error().Err(err).Str("upstream", target.name).Msg("Ошибка передачи тела ответа")
	}
}

// ServiceURLs возвращает базовые URL upstream сервисов для /health.
func (p *Proxy) ServiceURLs() map[string]string {
	return map[string]string{
		"order_service":     p.order.baseURL,
		"payment_service":   p.payment.baseURL,
		"inventory_service": p.inventory.baseURL,
	}
}

// Prefixes возвращает известные префиксы маршрутов.
func (p *Proxy) Prefixes() []string {
	return []string{"orders", "customers", "payments", "inventory"}
}

// pathPrefix возвращает первый сегмент пути без ведущего слэша.
func pathPrefix(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if strings.EqualFold(key, "Host") {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

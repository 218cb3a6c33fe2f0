// API Gateway — единая точка входа в систему.
// Пробрасывает запросы к Order, Payment и Inventory сервисам
// по префиксу пути, защищая каждый upstream Circuit Breaker'ом.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/order-saga/pkg/config"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/pkg/tracing"
	"example.com/order-saga/services/gateway/internal/proxy"
)

const serviceName = "api-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Pretty: cfg.App.LogPretty,
	})

	log := logger.With().Str("service", serviceName).Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Str("addr", cfg.API.Addr()).
		Str("order_service", cfg.Services.OrderURL).
		Str("payment_service", cfg.Services.PaymentURL).
		Str("inventory_service", cfg.Services.InventoryURL).
		Msg("Запуск API Gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    serviceName,
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации tracing")
	}

	serviceProxy := proxy.New(cfg.Services, nil)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr(), serviceName)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	engine := proxy.NewRouter(proxy.RouterConfig{
		Proxy: serviceProxy,
		Debug: cfg.API.Debug,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr(),
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP сервер запущен")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Получен сигнал завершения, останавливаем сервис...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка завершения tracing")
	}

	log.Info().Msg("API Gateway остановлен")
}

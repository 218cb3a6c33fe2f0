// Inventory Service — микросервис управления складом.
// Потребляет команды inventory_requested, резервирует товары
// атомарными условными списаниями и публикует результаты
// через транзакционный outbox.
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
	"example.com/order-saga/pkg/db"
	"example.com/order-saga/pkg/healthcheck"
	"example.com/order-saga/pkg/kafka"
	"example.com/order-saga/pkg/logger"
	"example.com/order-saga/pkg/metrics"
	"example.com/order-saga/pkg/outbox"
	"example.com/order-saga/pkg/tracing"
	"example.com/order-saga/services/inventory/internal/handler"
	"example.com/order-saga/services/inventory/internal/repository"
	"example.com/order-saga/services/inventory/internal/saga"
	"example.com/order-saga/services/inventory/internal/service"
)

const serviceName = "inventory-service"

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
		Msg("Запуск Inventory Service")

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

	gormDB, err := db.ConnectPostgres(ctx, cfg.Postgres, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к PostgreSQL")
	}
	log.Info().Msg("Подключение к PostgreSQL установлено")

	kafkaCfg := kafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}
	producer, err := kafka.NewProducer(kafkaCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka producer")
	}

	// Слои приложения
	productRepo := repository.NewProductRepository(gormDB)
	allocationRepo := repository.NewAllocationRepository(gormDB)
	inventoryService := service.NewInventoryService(productRepo, allocationRepo)

	// Outbox worker: переносит записи outbox в Kafka
	outboxRepo := outbox.NewOutboxRepository(gormDB, outbox.AggregateInventory)
	outboxWorker := outbox.NewOutboxWorker(outboxRepo, producer, outbox.DefaultWorkerConfig(), "inventory")
	go outboxWorker.Run(ctx)

	// Consumer команд: inventory_requested
	sagaConsumer, err := saga.NewConsumer(kafkaCfg, "inventory-service", inventoryService, producer)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka consumer")
	}
	go sagaConsumer.Run(ctx)

	readiness := healthcheck.Composite(
		func(ctx context.Context) error { return healthcheck.CheckPostgres(ctx, gormDB) },
	)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr(), serviceName,
			metrics.WithReadinessCheck(readiness))
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	router := handler.NewRouter(handler.RouterConfig{
		InventoryService: inventoryService,
		ReadinessCheck:   readiness,
		Debug:            cfg.API.Debug,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr(),
		Handler:      router.Engine(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
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

	if err := sagaConsumer.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka consumer")
	}
	if err := producer.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka producer")
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка завершения tracing")
	}

	if sqlDB, err := gormDB.DB(); err == nil && sqlDB != nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия PostgreSQL")
		}
	}

	log.Info().Msg("Inventory Service остановлен")
}

// Package db предоставляет общие функции подключения к базам данных.
// Используется всеми backend-сервисами (Order, Payment, Inventory).
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"example.com/order-saga/pkg/config"
	"example.com/order-saga/pkg/logger"
)

// ConnectPostgres создаёт подключение к PostgreSQL через GORM.
// Подключение повторяется с экспоненциальной задержкой: при старте
// в docker-compose база может подниматься дольше сервиса.
func ConnectPostgres(ctx context.Context, cfg config.PostgresConfig, debug bool) (*gorm.DB, error) {
	// Настраиваем логгер GORM
	logLevel := gormlogger.Silent
	if debug {
		logLevel = gormlogger.Info
	}

	var db *gorm.DB

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var openErr error
		db, openErr = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(logLevel),
		})
		if openErr != nil {
			logger.Warn().Err(openErr).
				Str("host", cfg.Host).
				Int("port", cfg.Port).
				Msg("PostgreSQL недоступен, повтор подключения")
			return retry.RetryableError(openErr)
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		sqlDB, dbErr := db.DB()
		if dbErr != nil {
			return dbErr
		}
		if pingErr := sqlDB.PingContext(pingCtx); pingErr != nil {
			logger.Warn().Err(pingErr).Msg("Ping PostgreSQL не прошёл, повтор подключения")
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	// Настраиваем пул соединений
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MinConnections)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Подключено к PostgreSQL")

	return db, nil
}

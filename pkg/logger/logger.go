// Package logger предоставляет структурированное логирование на базе zerolog.
// JSON формат для production, pretty-print для разработки.
// Все сообщения логов пишутся на русском языке.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// log — глобальный экземпляр логгера.
// Инициализируется в init() и перенастраивается через Init().
var log zerolog.Logger

// Config содержит настройки логгера.
type Config struct {
	// Level — минимальный уровень логирования: "debug", "info", "warn", "error".
	Level string

	// Pretty включает читаемый цветной вывод для разработки.
	// При false логи пишутся в JSON (production).
	Pretty bool

	// Output — writer для вывода логов. По умолчанию os.Stdout.
	Output io.Writer
}

// init настраивает логгер из переменных окружения при импорте пакета.
func init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	Init(Config{
		Level:  level,
		Pretty: strings.ToLower(os.Getenv("LOG_PRETTY")) == "true",
	})
}

// Init инициализирует глобальный логгер.
// Вызывается в начале работы каждого сервиса после загрузки конфигурации.
func Init(cfg Config) {
	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	level := parseLevel(cfg.Level)

	log = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
}

// parseLevel преобразует строку в zerolog.Level.
// Неизвестный уровень трактуется как info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug создаёт событие лога уровня debug.
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info создаёт событие лога уровня info.
// Пример: logger.Info().Str("order_id", id).Msg("Заказ создан")
func Info() *zerolog.Event {
	return log.Info()
}

// Warn создаёт событие лога уровня warn.
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error создаёт событие лога уровня error.
func Error() *zerolog.Event {
	return log.Error()
}

// Fatal создаёт событие лога уровня fatal.
// ВНИМАНИЕ: после вызова Msg() приложение завершится с кодом 1.
func Fatal() *zerolog.Event {
	return log.Fatal()
}

// With создаёт новый логгер с дополнительными полями.
// Пример:
//
//	svcLog := logger.With().Str("service", "order-service").Logger()
func With() zerolog.Context {
	return log.With()
}

// Logger возвращает глобальный экземпляр zerolog.Logger.
func Logger() zerolog.Logger {
	return log
}

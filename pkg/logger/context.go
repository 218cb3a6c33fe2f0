package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// Ключи контекста. Приватный тип исключает коллизии с другими пакетами.
type ctxKey string

const (
	// traceIDKey — ключ trace_id: сквозной идентификатор запроса через все сервисы.
	traceIDKey ctxKey = "trace_id"

	// correlationIDKey — ключ correlation_id: связывает операции одной бизнес-транзакции
	// (в нашем случае — одной саги).
	correlationIDKey ctxKey = "correlation_id"
)

// WithTraceID добавляет trace_id в контекст.
// Генерируется на входе в систему (API Gateway) и передаётся через headers Kafka.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext извлекает trace_id из контекста.
// Возвращает пустую строку, если trace_id не установлен.
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithCorrelationID добавляет correlation_id в контекст.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext извлекает correlation_id из контекста.
// Возвращает пустую строку, если correlation_id не установлен.
func CorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

// NewContextWithIDs добавляет trace_id и correlation_id в контекст одним вызовом.
func NewContextWithIDs(ctx context.Context, traceID, correlationID string) context.Context {
	return WithCorrelationID(WithTraceID(ctx, traceID), correlationID)
}

// FromContext возвращает логгер, обогащённый trace_id и correlation_id из контекста.
// Используется во всех обработчиках вместо глобального логгера.
func FromContext(ctx context.Context) zerolog.Logger {
	logCtx := log.With()

	if traceID := TraceIDFromContext(ctx); traceID != "" {
		logCtx = logCtx.Str("trace_id", traceID)
	}
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		logCtx = logCtx.Str("correlation_id", correlationID)
	}

	return logCtx.Logger()
}

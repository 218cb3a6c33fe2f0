package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/order-saga/pkg/logger"
)

// MessageHandler - функция обработки сообщений.
// Получает context с headers (trace_id, correlation_id) и сообщение.
// Должна вернуть nil при успешной обработке.
type MessageHandler func(ctx context.Context, msg *Message) error

// redeliveryDelay — пауза перед пересозданием reader после nack.
const redeliveryDelay = 5 * time.Second

// dlqSender отправляет необработанное сообщение в Dead Letter Queue.
type dlqSender interface {
	SendToDLQ(ctx context.Context, msg *Message, processingErr error) error
}

// Consumer читает сообщения из Kafka и передаёт их обработчику.
// Поддерживает graceful shutdown через context.
type Consumer struct {
	reader   *kafka.Reader
	producer *Producer // Для отправки в DLQ
	cfg      Config
	topic    string
	groupID  string
}

// NewConsumer создаёт новый Consumer для чтения сообщений из топика.
// groupID используется для consumer group - несколько инстансов с одним groupID
// будут распределять партиции между собой.
func NewConsumer(cfg Config, topic string, groupID string) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}

	if topic == "" {
		return nil, fmt.Errorf("не указан топик")
	}

	if groupID == "" {
		return nil, fmt.Errorf("не указан group ID")
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", topic).
		Str("group_id", groupID).
		Msg("Создан Kafka Consumer")

	return &Consumer{
		reader:  newReader(cfg, topic, groupID),
		cfg:     cfg,
		topic:   topic,
		groupID: groupID,
	}, nil
}

// newReader создаёт kafka.Reader для consumer group.
func newReader(cfg Config, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,    // Минимум 1 байт для быстрой обработки
		MaxBytes:       10e6, // 10MB максимум
		MaxWait:        100 * time.Millisecond,
		CommitInterval: time.Second, // Автокоммит каждую секунду
		StartOffset:    kafka.LastOffset,
	})
}

// SetDLQProducer устанавливает Producer для отправки ошибочных сообщений в DLQ.
func (c *Consumer) SetDLQProducer(p *Producer) {
	c.producer = p
}

// Consume запускает чтение сообщений из топика.
// Блокирует выполнение до отмены context.
// При отмене context выполняется graceful shutdown.
//
// Политика подтверждения — at-least-once: offset коммитится только после
// успешной обработки сообщения либо успешной парковки в DLQ. Если обработчик
// вернул ошибку и припарковать сообщение не удалось (DLQ не настроен или
// недоступен), сообщение не подтверждается: consumer переподключается к
// группе и получает его повторно с последнего закоммиченного offset.
// Фатальные ошибки (невалидная схема события) обработчики подтверждают
// сами, возвращая nil после логирования.
//
// Пример использования:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	go func() {
//	    <-sigChan
//	    cancel()
//	}()
//	consumer.Consume(ctx, handler)
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	logger.Info().
		Str("topic", c.topic).
		Msg("Запуск чтения сообщений из Kafka")

	for {
		// Проверяем отмену context перед чтением.
		select {
		case <-ctx.Done():
			logger.Info().
				Str("topic", c.topic).
				Msg("Получен сигнал завершения, остановка Consumer")
			return ctx.Err()
		default:
		}

		// Читаем сообщение с таймаутом.
		msg, err := c.fetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.Error().
				Err(err).
				Str("topic", c.topic).
				Msg("Ошибка чтения сообщения из Kafka")
			continue
		}

		// Обрабатываем сообщение.
		if err := c.processMessage(ctx, msg, handler); err != nil {
			logger.Error().
				Err(err).
				Str("topic", c.topic).
				Str("key", string(msg.Key)).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Ошибка обработки сообщения")

			// Коммитить можно только припаркованное сообщение:
			// иначе оно будет потеряно.
			if !c.park(ctx, msg, err) {
				logger.Warn().
					Str("topic", c.topic).
					Int64("offset", msg.Offset).
					Msg("Сообщение не подтверждено и будет передоставлено")
				if err := c.reconnect(ctx); err != nil {
					return err
				}
				continue
			}
		}

		// Коммитим offset: сообщение обработано или в DLQ.
		if err := c.commitMessage(ctx, msg); err != nil {
			logger.Error().
				Err(err).
				Msg("Ошибка коммита offset")
		}
	}
}

// park отправляет необработанное сообщение в DLQ.
// Возвращает true только при успешной парковке.
func (c *Consumer) park(ctx context.Context, msg *Message, processingErr error) bool {
	if c.producer == nil {
		return false
	}
	return parkInDLQ(ctx, c.producer, msg, processingErr)
}

// parkInDLQ пытается припарковать сообщение в Dead Letter Queue.
func parkInDLQ(ctx context.Context, dlq dlqSender, msg *Message, processingErr error) bool {
	logger.Warn().
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Err(processingErr).
		Msg("Отправка сообщения в DLQ")

	if err := dlq.SendToDLQ(ctx, msg, processingErr); err != nil {
		logger.Error().
			Err(err).
			Str("topic", msg.Topic).
			Str("key", string(msg.Key)).
			Msg("Ошибка отправки в DLQ")
		return false
	}
	return true
}

// reconnect пересоздаёт reader после nack: при повторном входе в группу
// чтение партиции продолжается с последнего закоммиченного offset,
// поэтому неподтверждённое сообщение доставляется повторно.
func (c *Consumer) reconnect(ctx context.Context) error {
	if err := c.reader.Close(); err != nil {
		logger.Error().
			Err(err).
			Str("topic", c.topic).
			Msg("Ошибка закрытия reader при переподключении")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(redeliveryDelay):
	}

	c.reader = newReader(c.cfg, c.topic, c.groupID)
	logger.Info().
		Str("topic", c.topic).
		Str("group_id", c.groupID).
		Msg("Consumer переподключён к группе")
	return nil
}

// ConsumeWithRetry запускает чтение с автоматическими повторами при ошибках.
// maxRetries - максимальное количество повторов для каждого сообщения.
// При исчерпании повторов сообщение отправляется в DLQ; если парковка
// не удалась, offset не коммитится и сообщение доставляется повторно.
func (c *Consumer) ConsumeWithRetry(ctx context.Context, handler MessageHandler, maxRetries int) error {
	retryHandler := func(ctx context.Context, msg *Message) error {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				// Экспоненциальная задержка: 100ms, 200ms, 400ms...
				delay := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
				logger.Warn().
					Int("attempt", attempt).
					Str("key", string(msg.Key)).
					Dur("delay", delay).
					Msg("Повторная попытка обработки сообщения")

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			if err := handler(ctx, msg); err != nil {
				lastErr = err
				continue
			}
			return nil
		}
		return fmt.Errorf("исчерпаны попытки обработки: %w", lastErr)
	}

	return c.Consume(ctx, retryHandler)
}

// fetchMessage читает следующее сообщение из Kafka.
func (c *Consumer) fetchMessage(ctx context.Context) (*Message, error) {
	kafkaMsg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return fromKafkaMessage(kafkaMsg), nil
}

// processMessage обрабатывает сообщение, добавляя headers в context.
func (c *Consumer) processMessage(ctx context.Context, msg *Message, handler MessageHandler) error {
	// Создаём context с headers из сообщения.
	msgCtx := c.contextFromMessage(ctx, msg)

	logger.Debug().
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("trace_id", TraceIDFromContext(msgCtx)).
		Str("correlation_id", CorrelationIDFromContext(msgCtx)).
		Msg("Получено сообщение из Kafka")

	return handler(msgCtx, msg)
}

// contextFromMessage создаёт context с headers из сообщения.
func (c *Consumer) contextFromMessage(ctx context.Context, msg *Message) context.Context {
	// Добавляем trace_id.
	if traceID, ok := msg.Headers[HeaderTraceID]; ok {
		ctx = ContextWithTraceID(ctx, traceID)
	}

	// Добавляем correlation_id.
	if correlationID, ok := msg.Headers[HeaderCorrelationID]; ok {
		ctx = ContextWithCorrelationID(ctx, correlationID)
	}

	return ctx
}

// commitMessage коммитит offset сообщения.
func (c *Consumer) commitMessage(ctx context.Context, msg *Message) error {
	return c.reader.CommitMessages(ctx, kafka.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
}

// Close закрывает Consumer.
// Должен вызываться при завершении работы приложения.
func (c *Consumer) Close() error {
	logger.Info().
		Str("topic", c.topic).
		Msg("Закрытие Kafka Consumer")

	if err := c.reader.Close(); err != nil {
		logger.Error().
			Err(err).
			Str("topic", c.topic).
			Msg("Ошибка при закрытии Kafka Consumer")
		return fmt.Errorf("ошибка закрытия consumer: %w", err)
	}

	logger.Info().
		Str("topic", c.topic).
		Msg("Kafka Consumer закрыт")
	return nil
}

// Stats возвращает статистику Consumer.
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// Lag возвращает текущее отставание Consumer от конца топика.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

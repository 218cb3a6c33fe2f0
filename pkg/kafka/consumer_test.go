package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeDLQ — подменный dlqSender для проверки политики подтверждения.
type fakeDLQ struct {
	sendErr error
	calls   int
	lastMsg *Message
	lastErr error
}

func (f *fakeDLQ) SendToDLQ(ctx context.Context, msg *Message, processingErr error) error {
	f.calls++
	f.lastMsg = msg
	f.lastErr = processingErr
	return f.sendErr
}

func testMessage() *Message {
	return &Message{
		Topic: "payments",
		Key:   []byte("saga-1"),
		Value: []byte(`{"event_type":"payment_requested"}`),
	}
}

func TestParkInDLQ(t *testing.T) {
	t.Run("успешная парковка разрешает коммит", func(t *testing.T) {
		dlq := &fakeDLQ{}
		handleErr := errors.New("db connection refused")

		parked := parkInDLQ(context.Background(), dlq, testMessage(), handleErr)

		assert.True(t, parked)
		assert.Equal(t, 1, dlq.calls)
		assert.Equal(t, "saga-1", string(dlq.lastMsg.Key))
		assert.Equal(t, handleErr, dlq.lastErr)
	})

	t.Run("ошибка отправки в DLQ запрещает коммит", func(t *testing.T) {
		dlq := &fakeDLQ{sendErr: errors.New("dlq broker down")}

		parked := parkInDLQ(context.Background(), dlq, testMessage(), errors.New("handler error"))

		// Сообщение не припарковано: offset двигать нельзя,
		// иначе событие будет потеряно
		assert.False(t, parked)
		assert.Equal(t, 1, dlq.calls)
	})
}

func TestPark_WithoutProducer(t *testing.T) {
	c := &Consumer{topic: "payments"}

	parked := c.park(context.Background(), testMessage(), errors.New("handler error"))

	// Без DLQ producer парковка невозможна — сообщение передоставляется
	assert.False(t, parked)
}

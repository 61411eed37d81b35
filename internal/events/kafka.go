package events

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/oolio-shop/internal/domain/order"
)

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by order id, so every change of one
// order lands on the same partition.
type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaPublisher wraps w.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Publish implements order.Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, e order.Event) error {
	err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Order.ID),
		Value: encodeOrderEvent(e),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return errors.Wrap(err, "write kafka message")
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	if err := p.w.Close(); err != nil {
		return errors.Wrap(err, "close kafka writer")
	}
	return nil
}

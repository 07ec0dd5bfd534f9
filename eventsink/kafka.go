// Package eventsink forwards purchase engine events to external systems.
package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/iap/event"
	"github.com/xraph/iap/plugin"
)

// compile-time interface check
var _ plugin.Listener = (*Kafka)(nil)

// Producer is the part of a kafka writer the sink uses. *kafka.Writer
// satisfies it.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Option configures a Kafka sink.
type Option func(*Kafka)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Kafka) { k.logger = logger }
}

// WithTypes restricts the sink to the given event types.
func WithTypes(types ...event.Type) Option {
	return func(k *Kafka) {
		k.types = make(map[event.Type]bool, len(types))
		for _, t := range types {
			k.types[t] = true
		}
	}
}

// Kafka publishes every event as a JSON message keyed by item id.
type Kafka struct {
	producer Producer
	types    map[event.Type]bool // nil = all
	logger   *slog.Logger
}

// NewKafka creates a sink writing through producer.
func NewKafka(producer Producer, opts ...Option) *Kafka {
	k := &Kafka{producer: producer, logger: slog.Default()}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// NewKafkaWriter creates a batched writer for topic on brokers.
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
}

// Name implements plugin.Plugin.
func (k *Kafka) Name() string { return "kafka-event-sink" }

// OnEvent implements plugin.Listener.
func (k *Kafka) OnEvent(ctx context.Context, e *event.Event) error {
	if k.types != nil && !k.types[e.Type] {
		return nil
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventsink: encode %s: %w", e.Type, err)
	}

	key := e.ItemID
	if key == "" {
		key = string(e.Type)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  e.Time,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID.String())},
		},
	}

	if err := k.producer.WriteMessages(ctx, msg); err != nil {
		k.logger.Error("eventsink: failed to publish event",
			"type", string(e.Type),
			"event_id", e.ID.String(),
			"error", err,
		)
		return fmt.Errorf("eventsink: publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *Kafka) Close() error {
	return k.producer.Close()
}

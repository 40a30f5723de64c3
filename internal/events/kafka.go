package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	eventTypeHeader = "event-type"
	// publishTimeout bounds how long a committed request waits on the broker.
	publishTimeout = 2 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events after commit. Each Publish gives up after
// timeout; events are best effort and never hold a response for long.
type KafkaPublisher struct {
	writer     messageWriter
	propagator propagation.TextMapPropagator
	timeout    time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: publishTimeout,
	}
	return newKafkaPublisher(w, otel.GetTextMapPropagator())
}

func newKafkaPublisher(w messageWriter, p propagation.TextMapPropagator) *KafkaPublisher {
	return &KafkaPublisher{writer: w, propagator: p, timeout: publishTimeout}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := p.message(ctx, e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) message(ctx context.Context, e Event) (kafka.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s: %w", e.Type, err)
	}
	msg := kafka.Message{
		Key:     []byte(e.Key),
		Value:   body,
		Time:    e.At,
		Headers: []kafka.Header{{Key: eventTypeHeader, Value: []byte(e.Type)}},
	}
	p.propagator.Inject(ctx, headerCarrier{headers: &msg.Headers})
	return msg, nil
}

// headerCarrier adapts kafka headers to the otel propagation carrier.
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

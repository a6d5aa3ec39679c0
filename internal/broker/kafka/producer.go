package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	headerContentType = "content-type"
	headerEventType   = "event-type"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// typedEvent is implemented by payloads that carry their own event name.
type typedEvent interface {
	EventType() string
}

type Producer struct {
	w messageWriter
}

// NewProducer hashes keys onto partitions, so all events of one bag keep their order.
func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w}
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	msg := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "kafka publish to %s", topic)
	}
	return nil
}

// PublishJSON marshals v and publishes it under key. Payloads with an
// EventType method get it copied into the event-type header.
func (p *Producer) PublishJSON(ctx context.Context, topic, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "kafka encode")
	}
	headers := []kafka.Header{{Key: headerContentType, Value: []byte("application/json")}}
	if ev, ok := v.(typedEvent); ok {
		headers = append(headers, kafka.Header{Key: headerEventType, Value: []byte(ev.EventType())})
	}
	return p.Publish(ctx, topic, []byte(key), b, headers...)
}

func (p *Producer) Close() error {
	if c, ok := p.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

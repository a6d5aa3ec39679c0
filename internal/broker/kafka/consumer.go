package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. A returned error is retried a few times,
// after that consumption stops and the message stays uncommitted.
type Handler func(ctx context.Context, key, value []byte) error

const (
	defaultHandleAttempts = 3
	defaultRetryDelay     = 500 * time.Millisecond
)

type Consumer struct {
	r     messageReader
	topic string
	log   zerolog.Logger

	attempts   int
	retryDelay time.Duration
}

// NewConsumer reads topic as a member of groupID. Without a group the reader
// starts from the first offset of every partition.
func NewConsumer(brokers []string, topic, groupID string, log zerolog.Logger) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		MaxWait:           time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	c := newConsumerWithReader(kafka.NewReader(cfg), log)
	c.topic = topic
	return c
}

func newConsumerWithReader(r messageReader, log zerolog.Logger) *Consumer {
	return &Consumer{
		r:          r,
		log:        log.With().Str("component", "kafka_consumer").Logger(),
		attempts:   defaultHandleAttempts,
		retryDelay: defaultRetryDelay,
	}
}

func (c *Consumer) Topic() string { return c.topic }

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume runs until ctx is done (returns nil) or a fetch, handler or commit fails.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		if err := c.handle(ctx, handler, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// не коммитим: после рестарта сообщение придёт снова
			return errors.Wrapf(err, "handle message partition %d offset %d", msg.Partition, msg.Offset)
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
		c.log.Debug().
			Str("key", string(msg.Key)).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("message committed")
	}
}

func (c *Consumer) handle(ctx context.Context, handler Handler, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = handler(ctx, msg.Key, msg.Value); err == nil {
			return nil
		}
		if attempt == c.attempts {
			break
		}
		c.log.Warn().Err(err).
			Str("key", string(msg.Key)).
			Int("attempt", attempt).
			Msg("handler failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		}
	}
	return err
}

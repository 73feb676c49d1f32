package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
)

// Message represents a message on the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
	Enabled() bool
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// noopClient is used when messaging is disabled.
type noopClient struct {
	topic string
}

// NewNoop returns a client that drops every message.
func NewNoop(topic string) Client {
	return noopClient{topic: topic}
}

func (n noopClient) Publish(context.Context, Message) error { return nil }
func (n noopClient) Consume(ctx context.Context, handler Handler) error {
	<-ctx.Done()
	return ctx.Err()
}
func (n noopClient) Topic() string { return n.topic }
func (n noopClient) Enabled() bool { return false }

// kafkaClient implements the Client via kafka-go.
type kafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
	topic  string
	retry  retryPolicy
	logger *zap.Logger
}

// retryPolicy bounds the backoff between attempts at a failing message.
type retryPolicy struct {
	initial time.Duration
	max     time.Duration
}

func (k *kafkaClient) Publish(ctx context.Context, msg Message) error {
	out := kafka.Message{Key: msg.Key, Value: msg.Value, Time: msg.Time}
	for key, value := range msg.Headers {
		out.Headers = append(out.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return k.writer.WriteMessages(ctx, out)
}

func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))

			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if err := deliver(ctx, k.retry, k.logger, handler, fromKafka(msg)); err != nil {
			return err
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Warn("commit failed", zap.Error(err))
		}
	}
}

// deliver runs handler until it accepts msg or ctx ends. The consumer group
// offset only moves forward once a message is handled, so a failure blocks
// the partition instead of being skipped.
func deliver(ctx context.Context, policy retryPolicy, logger *zap.Logger, handler Handler, msg Message) error {
	if policy.initial <= 0 {
		policy.initial = 500 * time.Millisecond
	}
	if policy.max < policy.initial {
		policy.max = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(policy.initial),
		backoff.WithMaxInterval(policy.max),
		backoff.WithMaxElapsedTime(0),
	)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := handler(ctx, msg)
		if err != nil {
			logger.Error("message handler failed",
				zap.Error(err),
				zap.Int64("offset", msg.Offset),
				zap.Int("attempt", attempt),
			)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

func (k *kafkaClient) Topic() string { return k.topic }
func (k *kafkaClient) Enabled() bool { return true }

func fromKafka(msg kafka.Message) Message {
	wrapped := Message{
		Topic:  msg.Topic,
		Key:    append([]byte(nil), msg.Key...),
		Value:  append([]byte(nil), msg.Value...),
		Offset: msg.Offset,
		Time:   msg.Time,
	}
	if len(msg.Headers) > 0 {
		wrapped.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			wrapped.Headers[h.Key] = string(h.Value)
		}
	}
	return wrapped
}

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")

		return NewNoop(cfg.Messaging.Kafka.Topic), nil
	}

	switch cfg.Messaging.Driver {
	case "kafka":
		return newKafkaClient(lc, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	topic := cfg.Messaging.Kafka.Topic
	logger = logger.With(zap.String("component", "kafka"), zap.String("topic", topic))

	// Hash keeps every event of one order on one partition, preserving their order.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Messaging.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaLogger{logger: logger},
	}

	readerConfig := kafka.ReaderConfig{
		Brokers:        cfg.Messaging.Kafka.Brokers,
		GroupID:        cfg.Messaging.ConsumerGroup,
		Topic:          topic,
		MinBytes:       cfg.Messaging.Kafka.MinBytes,
		MaxBytes:       cfg.Messaging.Kafka.MaxBytes,
		CommitInterval: cfg.Messaging.Kafka.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  cfg.Messaging.Kafka.ConnectTimeout,
			ClientID: cfg.Messaging.Kafka.ClientID,
		},
	}

	reader := kafka.NewReader(readerConfig)

	client := &kafkaClient{
		writer: writer,
		reader: reader,
		topic:  topic,
		retry:  retryPolicy{initial: cfg.Messaging.Kafka.RetryInitial, max: cfg.Messaging.Kafka.RetryMax},
		logger: logger,
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing kafka client")

			return errors.Join(writer.Close(), reader.Close())
		},
	})

	return client, nil
}

type kafkaLogger struct {
	logger *zap.Logger
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	k.logger.Sugar().Debugf(msg, args...)
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jwalitptl/carebook-api/pkg/circuitbreaker"
	"github.com/jwalitptl/carebook-api/pkg/messaging"
)

type Config struct {
	Brokers      []string
	GroupID      string
	BatchTimeout time.Duration
}

// KafkaBroker publishes through a single writer and opens one consumer
// group reader per subscription.
type KafkaBroker struct {
	config Config
	writer *kafka.Writer
	cb     *circuitbreaker.CircuitBreaker
	logger *zerolog.Logger

	mu      sync.Mutex
	readers []*kafka.Reader
}

func NewKafkaBroker(config Config, logger *zerolog.Logger) (messaging.Broker, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker address is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           config.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return &KafkaBroker{
		config: config,
		writer: writer,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:             "kafka-broker",
			MaxRequests:      1,
			Interval:         10 * time.Second,
			Timeout:          5 * time.Second,
			FailureThreshold: 5,
		}),
		logger: logger,
	}, nil
}

func (b *KafkaBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.cb.Execute(func() error {
		return b.writer.WriteMessages(ctx, kafka.Message{
			Topic: topic,
			Value: payload,
		})
	})
}

func (b *KafkaBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.config.Brokers,
		Topic:    topic,
		GroupID:  b.config.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	msgChan := make(chan []byte, 100)
	go func() {
		defer close(msgChan)
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, io.EOF) {
					b.logger.Error().Err(err).Str("topic", topic).Msg("kafka read failed")
				}
				return
			}
			select {
			case msgChan <- msg.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgChan, nil
}

// Ping dials the first reachable broker.
func (b *KafkaBroker) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range b.config.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		return nil
	}
	return fmt.Errorf("kafka unreachable: %w", lastErr)
}

func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, r := range b.readers {
		errs = append(errs, r.Close())
	}
	b.readers = nil
	errs = append(errs, b.writer.Close())
	return errors.Join(errs...)
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// Producer publishes JSON records to a topic. Records sharing a key land on
// the same partition, which is what gives the change feed its per-entity
// ordering guarantee.
type Producer interface {
	// Publish sends a record synchronously and returns when the broker acks it.
	Publish(ctx context.Context, topic, key string, value interface{}) error
	// Close flushes and closes the underlying producer.
	Close() error
}

// ProducerConfig holds client-side settings for throughput/reliability.
type ProducerConfig struct {
	Brokers       []string
	RetryAttempts int
	FlushTimeout  time.Duration
	BatchSize     int
}

type producer struct {
	sync   sarama.SyncProducer
	logger *logrus.Logger
	config ProducerConfig
}

// NewProducer constructs an idempotent sync producer with acks=all.
func NewProducer(cfg ProducerConfig, logger *logrus.Logger) (Producer, error) {
	sc := sarama.NewConfig()

	// acks=all and >0 retries are required for idempotence.
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.RetryAttempts
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1 // one in-flight per connection for strict ordering

	sc.Producer.Flush.Frequency = cfg.FlushTimeout
	sc.Producer.Flush.Messages = cfg.BatchSize
	sc.Producer.Compression = sarama.CompressionSnappy

	sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	return &producer{sync: sp, logger: logger, config: cfg}, nil
}

// Publish marshals value to JSON and sends it under the given key.
func (p *producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"topic": topic,
			"key":   key,
		}).Error("failed to publish message")
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     topic,
		"key":       key,
		"partition": partition,
		"offset":    offset,
	}).Debug("message published")
	return nil
}

// Close flushes and closes the producer.
func (p *producer) Close() error {
	return p.sync.Close()
}

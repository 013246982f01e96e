package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/gridiron-data/nflrefresh/internal/logger"
)

const (
	defaultDeliveryTimeout = 30 * time.Second
	flushTimeoutMs         = 30 * 1000
)

// kafkaProducer is the subset of *kafka.Producer used by KafkaPublisher.
type kafkaProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Broker          string
	Topic           string
	DeliveryTimeout time.Duration
}

// KafkaPublisher sends one JSON message per written file.
type KafkaPublisher struct {
	producer kafkaProducer
	topic    string
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
}

// NewKafkaPublisher connects a producer to cfg.Broker.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("kafka publisher requires a broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Broker,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return newKafkaPublisher(producer, cfg.Topic, cfg.DeliveryTimeout), nil
}

func newKafkaPublisher(producer kafkaProducer, topic string, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	p := &KafkaPublisher{producer: producer, topic: topic, timeout: timeout}
	go p.handleEvents()
	return p
}

// handleEvents drains producer-level events (errors not tied to a delivery).
func (p *KafkaPublisher) handleEvents() {
	for e := range p.producer.Events() {
		if kerr, ok := e.(kafka.Error); ok {
			logger.Warn("kafka producer error", "topic", p.topic, "error", kerr.Error())
		}
	}
}

// Name implements Publisher.
func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish sends the artifact as JSON keyed by "{mode}/{season}" and waits
// for the delivery report.
func (p *KafkaPublisher) Publish(ctx context.Context, a Artifact) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &Error{Publisher: p.Name(), Path: a.Path, Err: errors.New("producer is closed")}
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return &Error{Publisher: p.Name(), Path: a.Path, Err: err}
	}

	topic := p.topic
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(fmt.Sprintf("%s/%d", a.Mode, a.Season)),
		Value:          payload,
	}

	delivery := make(chan kafka.Event, 1)
	if err := p.producer.Produce(msg, delivery); err != nil {
		return &Error{Publisher: p.Name(), Path: a.Path, Err: err}
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case e := <-delivery:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return &Error{Publisher: p.Name(), Path: a.Path, Err: m.TopicPartition.Error}
		}
	case <-ctx.Done():
		return &Error{Publisher: p.Name(), Path: a.Path, Err: ctx.Err()}
	case <-timer.C:
		return &Error{Publisher: p.Name(), Path: a.Path, Err: fmt.Errorf("no delivery report after %s", p.timeout)}
	}

	logger.Info("notification published", "season", a.Season, "topic", p.topic)
	return nil
}

// Close flushes outstanding messages and closes the producer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if remaining := p.producer.Flush(flushTimeoutMs); remaining > 0 {
		logger.Warn("kafka messages not flushed", "topic", p.topic, "remaining", remaining)
	}
	p.producer.Close()
	return nil
}

var _ Publisher = (*KafkaPublisher)(nil)

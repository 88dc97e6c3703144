package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON (or raw byte) values. The topic is chosen per call.
type Producer struct {
	w       messageWriter
	metrics *producerMetrics
}

// NewProducer creates a producer backed by a kafka-go Writer.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	var cfg ProducerConfig
	if err := fill(&cfg); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: brokers are required")
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  codec,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}), nil
}

func newProducer(w messageWriter) *Producer {
	return &Producer{w: w, metrics: loadProducerMetrics()}
}

// Publish writes one message. []byte and string values are sent as is,
// anything else is JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	body, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	start := time.Now()
	err = p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: body, Time: start})
	p.metrics.latency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.messages.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("write %s: %w", topic, err)
	}
	p.metrics.messages.WithLabelValues(topic, "ok").Inc()
	p.metrics.bytes.WithLabelValues(topic).Add(float64(len(body)))
	return nil
}

// PublishMessage publishes without a key. It backs the log collector.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// Close flushes pending async writes.
func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

func encodeValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	case json.RawMessage:
		return val, nil
	default:
		return json.Marshal(v)
	}
}

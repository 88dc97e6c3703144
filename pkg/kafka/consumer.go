package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ImpactRank/pkg/logger"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// fetcher is the part of *kafka.Reader the consumer uses.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics in one consumer group and hands messages
// to a fixed set of lanes. A partition always lands on the same lane, so
// messages of one partition are handled and committed in order.
type Consumer struct {
	cfg     ConsumerConfig
	log     *logger.Logger
	hook    ConsumerHook
	metrics *consumerMetrics

	handlers map[string]MessageHandler
	readers  map[string]fetcher
	dlq      messageWriter
	open     func(topic string) fetcher

	lanes    []chan kafka.Message
	stop     chan struct{}
	readWG   sync.WaitGroup
	laneWG   sync.WaitGroup
	stopOnce sync.Once
	started  bool
}

// NewConsumer creates a consumer. Handlers are registered before Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	var cfg ConsumerConfig
	if err := fill(&cfg); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger.With(logger.String("component", "kafka_consumer")),
		hook:     noopHook{},
		metrics:  loadConsumerMetrics(),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]fetcher),
		stop:     make(chan struct{}),
	}
	c.open = func(topic string) fetcher {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// WithConsumerHook installs lifecycle hooks. Use NewHookChain for several.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds a handler to its topic. The first registration wins.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if c.started {
		c.log.Warn("handler registered after start ignored", logger.String("topic", h.Topic()))
		return
	}
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("duplicate handler ignored", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// Start opens one reader per registered topic and starts the lanes.
func (c *Consumer) Start() error {
	if c.started {
		return errors.New("kafka consumer: already started")
	}
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	c.started = true

	c.lanes = make([]chan kafka.Message, c.cfg.Workers)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.laneWG.Add(1)
		go c.runLane(i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c.stop
		cancel()
	}()
	for topic := range c.handlers {
		r := c.open(topic)
		c.readers[topic] = r
		c.readWG.Add(1)
		go c.read(ctx, topic, r)
	}

	c.log.Info("kafka consumer started",
		logger.String("group_id", c.cfg.GroupID),
		logger.Int("topics", len(c.handlers)),
		logger.Int("lanes", c.cfg.Workers))
	return nil
}

// Stop stops fetching, drains the lanes and closes the readers. Messages
// still buffered when ctx expires are not committed and are redelivered.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		if !c.started {
			return
		}
		c.readWG.Wait()
		for _, lane := range c.lanes {
			close(lane)
		}

		drained := make(chan struct{})
		go func() {
			c.laneWG.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer drain: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("close dlq writer", logger.Error(cerr))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return err
}

func (c *Consumer) read(ctx context.Context, topic string, r fetcher) {
	defer c.readWG.Done()
	failures := 0
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.log.Error("fetch failed", logger.String("topic", topic), logger.Error(err))
			if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0

		i := laneFor(topic, km.Partition, len(c.lanes))
		select {
		case c.lanes[i] <- km:
			c.metrics.laneDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(len(c.lanes[i])))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) runLane(i int) {
	defer c.laneWG.Done()
	for km := range c.lanes[i] {
		c.process(km)
	}
}

// process runs the handler with retries, dead-letters a message that keeps
// failing and commits its offset either way. Returning early during
// shutdown leaves the offset uncommitted.
func (c *Consumer) process(km kafka.Message) {
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()

	var err error
	for attempt := 1; ; attempt++ {
		err = c.attempt(h, km)
		if err == nil || attempt > c.cfg.RetryMax {
			break
		}
		c.hook.OnError(context.Background(), km.Topic, km, attempt, err)
		if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return
		}
	}

	result := "ok"
	if err != nil {
		result = "failed"
		c.log.Error("message failed after retries",
			logger.String("topic", km.Topic),
			logger.Int("partition", km.Partition),
			logger.Int64("offset", km.Offset),
			logger.Error(err))
		if c.deadLetter(km, err) {
			result = "dead_lettered"
		}
	}
	c.metrics.handled.WithLabelValues(km.Topic, result).Inc()
	c.metrics.latency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
	c.commit(km)
}

func (c *Consumer) attempt(h MessageHandler, km kafka.Message) (err error) {
	ctx, err := c.hook.BeforeHandle(context.Background(), km.Topic, km)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("handler panic: %v", r)}
		}
		c.hook.AfterHandle(ctx, km.Topic, km, err)
	}()
	return h.Handle(ctx, km.Value)
}

func (c *Consumer) deadLetter(km kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now(),
		Headers: append(km.Headers,
			kafka.Header{Key: "dlq_source_topic", Value: []byte(km.Topic)},
			kafka.Header{Key: "dlq_source_partition", Value: []byte(strconv.Itoa(km.Partition))},
			kafka.Header{Key: "dlq_source_offset", Value: []byte(strconv.FormatInt(km.Offset, 10))},
			kafka.Header{Key: "dlq_error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		c.log.Error("dead-letter write failed, message dropped",
			logger.String("dlq_topic", c.cfg.DLQTopic),
			logger.Int64("offset", km.Offset),
			logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(km kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		if attempt == 3 {
			break
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit failed",
		logger.String("topic", km.Topic),
		logger.Int64("offset", km.Offset),
		logger.Error(err))
}

// sleep waits d and reports false when the consumer is stopping.
func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.stop:
		return false
	}
}

func laneFor(topic string, partition, lanes int) int {
	if lanes <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int((h.Sum32() + uint32(partition)) % uint32(lanes))
}

// backoffWithJitter doubles from min per attempt, caps at max and subtracts
// up to half as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	d := max
	if attempt < 32 {
		if exp := min << uint(attempt-1); exp > 0 && exp < max {
			d = exp
		}
	}
	return d - time.Duration(rand.Int63n(int64(d)/2+1))
}

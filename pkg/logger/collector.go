package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Publisher ships collected batches, e.g. the Kafka producer.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig controls when the collector flushes and where to.
type CollectionConfig struct {
	Service        string
	TimeInterval   time.Duration // flush at least this often
	CountThreshold int           // flush once this many distinct entries are held
	Topic          string
	Publisher      Publisher
}

// CollectedLogs is the payload of one flush.
type CollectedLogs struct {
	Service   string               `json:"service"`
	Entries   []AggregatedLogEntry `json:"entries"`
	Dropped   int                  `json:"dropped,omitempty"`
	FlushedAt time.Time            `json:"flushed_at"`
}

// AggregatedLogEntry counts repeats of one (level, message, fields, caller).
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated warnings and errors into counted entries and
// publishes them in batches from a single sender goroutine. When the sender
// falls behind, whole batches are dropped and counted in the next one.
type LogCollector struct {
	cfg CollectionConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	dropped int
	closed  bool

	batches chan CollectedLogs
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewLogCollector starts the flush and send loops.
func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		now:     time.Now,
		entries: make(map[string]*AggregatedLogEntry),
		batches: make(chan CollectedLogs, 4),
		stop:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	c.wg.Add(2)
	go c.tick()
	go c.send()
	return c
}

// AddLog records one occurrence.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	key := fingerprint(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.entries[key] = &AggregatedLogEntry{
		Level: level, Message: message, Fields: fields, Caller: caller,
		Count: 1, FirstSeen: now, LastSeen: now,
	}
	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

// Close flushes what is held and waits for the sender to finish.
func (c *LogCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}

func (c *LogCollector) tick() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.flushLocked()
			c.closed = true
			c.mu.Unlock()
			close(c.batches)
			return
		}
	}
}

func (c *LogCollector) send() {
	defer c.wg.Done()
	for batch := range c.batches {
		if c.cfg.Publisher == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			// the logger cannot report its own sink failing
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch.Entries), err)
		}
		cancel()
	}
}

// flushLocked hands the held entries, noisiest first, to the sender.
// Must be called with c.mu held.
func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 {
		return
	}
	batch := CollectedLogs{
		Service:   c.cfg.Service,
		Entries:   make([]AggregatedLogEntry, 0, len(c.entries)),
		Dropped:   c.dropped,
		FlushedAt: c.now().UTC(),
	}
	for _, e := range c.entries {
		batch.Entries = append(batch.Entries, *e)
	}
	sort.Slice(batch.Entries, func(i, j int) bool {
		a, b := batch.Entries[i], batch.Entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.FirstSeen.Before(b.FirstSeen)
	})

	select {
	case c.batches <- batch:
		c.dropped = 0
	default:
		c.dropped += len(batch.Entries)
	}
	c.entries = make(map[string]*AggregatedLogEntry)
}

func fingerprint(level, message string, fields map[string]interface{}, caller string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(level)
	b.WriteByte('|')
	b.WriteString(caller)
	b.WriteByte('|')
	b.WriteString(message)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, fields[k])
	}
	return b.String()
}

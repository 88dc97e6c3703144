package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanPublisher struct {
	topics chan string
	sent   chan CollectedLogs
}

func newChanPublisher() *chanPublisher {
	return &chanPublisher{topics: make(chan string, 4), sent: make(chan CollectedLogs, 4)}
}

func (p *chanPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.topics <- topic
	p.sent <- payload.(CollectedLogs)
	return nil
}

func (p *chanPublisher) next(t *testing.T) CollectedLogs {
	t.Helper()
	select {
	case <-p.topics:
		return <-p.sent
	case <-time.After(2 * time.Second):
		t.Fatal("expected a flush")
		return CollectedLogs{}
	}
}

func TestLogCollectorAggregatesAndFlushes(t *testing.T) {
	pub := newChanPublisher()
	c := NewLogCollector(&CollectionConfig{
		Service:        "impactrank",
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "logs",
		Publisher:      pub,
	})
	defer c.Close()

	fields := map[string]interface{}{"ticker": "XYZ"}
	c.AddLog("error", "store failed", fields, "a.go:1")
	c.AddLog("error", "store failed", fields, "a.go:1")
	c.AddLog("error", "publish failed", nil, "b.go:2")

	payload := pub.next(t)
	assert.Equal(t, "impactrank", payload.Service)
	require.Len(t, payload.Entries, 2)
	assert.Equal(t, "store failed", payload.Entries[0].Message)
	assert.Equal(t, 2, payload.Entries[0].Count)
}

func TestLogCollectorFlushesOnClose(t *testing.T) {
	pub := newChanPublisher()
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 50, Topic: "logs", Publisher: pub})
	c.AddLog("warn", "history unavailable", nil, "u.go:9")
	c.Close()

	payload := pub.next(t)
	require.Len(t, payload.Entries, 1)
	assert.Equal(t, "warn", payload.Entries[0].Level)

	assert.NotPanics(t, func() {
		c.AddLog("warn", "late", nil, "u.go:10")
		c.Close()
	})
}

func TestFingerprintIgnoresFieldOrder(t *testing.T) {
	a := fingerprint("error", "m", map[string]interface{}{"a": 1, "b": "x"}, "f.go:1")
	b := fingerprint("error", "m", map[string]interface{}{"b": "x", "a": 1}, "f.go:1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, fingerprint("warn", "m", nil, "f.go:1"))
}

func TestLoggerErrorFeedsCollector(t *testing.T) {
	pub := newChanPublisher()
	l := NewNop()
	child := l.With(String("component", "ranking"))
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "logs", Publisher: pub})
	defer l.RemoveCollector()

	child.Error("history fetch failed", String("source", "clickhouse"), Error(errors.New("timeout")))

	payload := pub.next(t)
	require.Len(t, payload.Entries, 1)
	e := payload.Entries[0]
	assert.Equal(t, "clickhouse", e.Fields["source"])
	assert.Equal(t, "timeout", e.Fields["error"])
	assert.Contains(t, e.Caller, "logger/collector_test.go:")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestFieldValues(t *testing.T) {
	assert.Equal(t, int64(1500), Duration("took", 1500*time.Millisecond).Value)
	assert.Nil(t, Error(nil).Value)
	assert.Equal(t, "2024-05-01T12:00:00Z", Time("at", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)).Value)
}

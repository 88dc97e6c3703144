package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownJob is returned by Enqueue for a type no job was registered for.
	ErrUnknownJob = errors.New("queue: no job registered for type")
	// ErrQueueFull is returned when the pending backlog reached Config.MaxPending.
	ErrQueueFull = errors.New("queue: backlog full")
	// ErrNotRunning is returned by Enqueue before Start or after Stop.
	ErrNotRunning = errors.New("queue: not running")
)

// Publisher enqueues work for asynchronous processing.
type Publisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Config tunes workers and retries.
type Config struct {
	Workers    int
	MaxPending int           // soft cap on the ready list, 0 = unbounded
	RetryLimit int           // attempts after the first failure
	RetryDelay time.Duration // multiplied by the attempt number
}

// Envelope is what is stored in Redis.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// retryAt is when a message that has failed attempts times runs again.
func (c Config) retryAt(now time.Time, attempts int) time.Time {
	return now.Add(time.Duration(attempts) * c.RetryDelay)
}

// ParsePayload converts a job payload into T.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var raw []byte
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}

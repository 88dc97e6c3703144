package queue

import "context"

// Job handles one message type. Handle receives either the value passed to
// Enqueue (in-process) or its JSON encoding as json.RawMessage (from Redis);
// ParsePayload accepts both.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

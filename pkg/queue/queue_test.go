package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batch struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

func TestParsePayload(t *testing.T) {
	direct, err := ParsePayload[batch](batch{Source: "kafka", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, direct.Count)

	ptr := &batch{Source: "api"}
	same, err := ParsePayload[batch](ptr)
	require.NoError(t, err)
	assert.Same(t, ptr, same)

	fromRedis, err := ParsePayload[batch](json.RawMessage(`{"source":"kafka","count":7}`))
	require.NoError(t, err)
	assert.Equal(t, batch{Source: "kafka", Count: 7}, *fromRedis)

	_, err = ParsePayload[batch](json.RawMessage(`{"count":"seven"}`))
	assert.Error(t, err)

	_, err = ParsePayload[batch](42)
	assert.Error(t, err)
}

func TestEnvelopeKeepsPayloadVerbatim(t *testing.T) {
	env := Envelope{ID: "m1", Type: "ranking.refresh", Payload: json.RawMessage(`{"count":1}`), Attempts: 2}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var back Envelope
	require.NoError(t, json.Unmarshal(data, &back))
	assert.JSONEq(t, `{"count":1}`, string(back.Payload))
	assert.Equal(t, 2, back.Attempts)
}

func TestRetryBackoffIsLinear(t *testing.T) {
	cfg := Config{RetryDelay: 5 * time.Second}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(5*time.Second), cfg.retryAt(now, 1))
	assert.Equal(t, now.Add(15*time.Second), cfg.retryAt(now, 3))
}

func TestNewRedisQueueDefaults(t *testing.T) {
	q := NewRedisQueue(nil, Config{}, nil, WithKeyPrefix("impactrank:queue"), WithPollTimeout(0))
	assert.Equal(t, 1, q.cfg.Workers)
	assert.Equal(t, 5*time.Second, q.cfg.RetryDelay)
	assert.Equal(t, time.Second, q.pollTimeout)
	assert.Equal(t, "impactrank:queue:ready", q.readyKey())
	assert.Equal(t, "impactrank:queue:dead", q.deadKey())
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ImpactRank/pkg/logger"
)

// promoteScript moves due retries back onto the ready list atomically, so two
// instances sharing a prefix never run the same retry twice.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue is a list-backed job queue. Failed messages wait in a sorted set
// scored by their next attempt time and end up in a dead-letter list once the
// retry limit is spent.
type RedisQueue struct {
	l      *logger.Logger
	cfg    Config
	client *redis.Client

	prefix       string
	pollTimeout  time.Duration
	promoteEvery time.Duration
	promoteBatch int
	now          func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a RedisQueue.
type Option func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys.
func WithKeyPrefix(prefix string) Option {
	return func(q *RedisQueue) { q.prefix = prefix }
}

// WithPollTimeout sets how long a worker blocks on an empty list.
func WithPollTimeout(d time.Duration) Option {
	return func(q *RedisQueue) {
		if d > 0 {
			q.pollTimeout = d
		}
	}
}

// WithPromoteInterval sets how often due retries are moved back.
func WithPromoteInterval(d time.Duration) Option {
	return func(q *RedisQueue) {
		if d > 0 {
			q.promoteEvery = d
		}
	}
}

// NewRedisQueue creates a queue. Jobs must be registered before Start.
func NewRedisQueue(l *logger.Logger, cfg Config, client *redis.Client, opts ...Option) *RedisQueue {
	if l == nil {
		l = logger.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	q := &RedisQueue{
		l:            l.With(logger.String("component", "queue")),
		cfg:          cfg,
		client:       client,
		prefix:       "queue",
		pollTimeout:  time.Second,
		promoteEvery: time.Second,
		promoteBatch: 100,
		now:          time.Now,
		jobs:         make(map[string]Job),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// RegisterJob binds a job to its message type. A second job for the same
// type replaces the first.
func (q *RedisQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if prev, ok := q.jobs[job.Type()]; ok {
		q.l.Warn("job replaced", logger.String("type", job.Type()), logger.String("previous", prev.Name()))
	}
	q.jobs[job.Type()] = job
	q.l.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis and launches the workers and the retry promoter.
func (q *RedisQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue: already running")
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.running = true

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, i)
	}
	q.wg.Add(1)
	go q.promote(ctx)

	q.l.Info("queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.String("prefix", q.prefix),
		logger.String("addr", q.client.Options().Addr))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs until ctx expires.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.l.Info("queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue stores a message for the job registered under msgType.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	running := q.running
	_, known := q.jobs[msgType]
	q.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownJob, msgType)
	}

	if q.cfg.MaxPending > 0 {
		n, err := q.client.LLen(ctx, q.readyKey()).Result()
		if err != nil {
			return fmt.Errorf("llen: %w", err)
		}
		if n >= int64(q.cfg.MaxPending) {
			return ErrQueueFull
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	data, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    body,
		EnqueuedAt: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.readyKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage implements Publisher.
func (q *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return q.Enqueue(ctx, msgType, payload)
}

func (q *RedisQueue) work(ctx context.Context, id int) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, q.pollTimeout, q.readyKey()).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		default:
			q.l.Error("brpop failed", logger.Int("worker", id), logger.Error(err))
			sleepCtx(ctx, q.pollTimeout)
			continue
		}
		if len(res) == 2 {
			q.dispatch(ctx, []byte(res[1]))
		}
	}
}

func (q *RedisQueue) dispatch(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		q.l.Error("undecodable queue message, dropped", logger.Error(err))
		return
	}

	q.mu.RLock()
	job, ok := q.jobs[env.Type]
	q.mu.RUnlock()
	if !ok {
		env.LastError = ErrUnknownJob.Error()
		q.bury(env)
		return
	}

	start := q.now()
	err := job.Handle(ctx, env.Payload)
	if err == nil {
		q.l.Debug("job done",
			logger.String("id", env.ID),
			logger.String("job", job.Name()),
			logger.Duration("took", q.now().Sub(start)))
		return
	}
	if ctx.Err() != nil {
		// shutting down: put it back untouched for the next instance
		q.requeue(env)
		return
	}

	env.Attempts++
	env.LastError = err.Error()
	if env.Attempts > q.cfg.RetryLimit {
		q.l.Error("job failed, retries exhausted",
			logger.String("id", env.ID),
			logger.String("job", job.Name()),
			logger.Int("attempts", env.Attempts),
			logger.Error(err))
		q.bury(env)
		return
	}
	at := q.cfg.retryAt(q.now(), env.Attempts)
	q.l.Warn("job failed, retry scheduled",
		logger.String("id", env.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", env.Attempts),
		logger.Time("retry_at", at),
		logger.Error(err))
	q.schedule(env, at)
}

func (q *RedisQueue) schedule(env Envelope, at time.Time) {
	data, err := json.Marshal(env)
	if err != nil {
		q.l.Error("encode retry", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.client.ZAdd(ctx, q.retryKey(), redis.Z{Score: float64(at.UnixMilli()), Member: data}).Err(); err != nil {
		q.l.Error("zadd retry", logger.String("id", env.ID), logger.Error(err))
	}
}

func (q *RedisQueue) requeue(env Envelope) {
	q.push(q.readyKey(), env)
}

func (q *RedisQueue) bury(env Envelope) {
	q.push(q.deadKey(), env)
}

func (q *RedisQueue) push(key string, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		q.l.Error("encode message", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		q.l.Error("lpush", logger.String("key", key), logger.String("id", env.ID), logger.Error(err))
	}
}

func (q *RedisQueue) promote(ctx context.Context) {
	defer q.wg.Done()
	t := time.NewTicker(q.promoteEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := promoteScript.Run(ctx, q.client,
				[]string{q.retryKey(), q.readyKey()},
				q.now().UnixMilli(), q.promoteBatch).Int()
			if err != nil && ctx.Err() == nil {
				q.l.Error("promote retries", logger.Error(err))
				continue
			}
			if n > 0 {
				q.l.Debug("retries promoted", logger.Int("count", n))
			}
		}
	}
}

// Stats reports queue depth, pending retries and dead letters.
type Stats struct {
	Pending     int64 `json:"pending"`
	Retrying    int64 `json:"retrying"`
	DeadLetters int64 `json:"dead_letters"`
}

// Stats reads the current queue sizes.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.readyKey())
	retrying := pipe.ZCard(ctx, q.retryKey())
	dead := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Retrying: retrying.Val(), DeadLetters: dead.Val()}, nil
}

func (q *RedisQueue) readyKey() string { return q.prefix + ":ready" }
func (q *RedisQueue) retryKey() string { return q.prefix + ":retry" }
func (q *RedisQueue) deadKey() string  { return q.prefix + ":dead" }

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

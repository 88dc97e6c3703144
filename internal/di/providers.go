package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ImpactRank/internal/domain/repository"
	"ImpactRank/internal/handler/api"
	"ImpactRank/internal/handler/ws"
	internalrepo "ImpactRank/internal/repository"
	"ImpactRank/internal/service/ratelimit"
	"ImpactRank/internal/services/history"
	"ImpactRank/internal/services/impact"
	"ImpactRank/internal/usecase"
	"ImpactRank/pkg/cache"
	pkgch "ImpactRank/pkg/clickhouse"
	"ImpactRank/pkg/config"
	xhttp "ImpactRank/pkg/http"
	pkgkafka "ImpactRank/pkg/kafka"
	applogger "ImpactRank/pkg/logger"
	"ImpactRank/pkg/metrics"
	"ImpactRank/pkg/queue"
	"ImpactRank/pkg/server"
)

const schemaTimeout = 30 * time.Second

// ProvideLogger creates the application logger. When log collection is
// enabled, repeated warnings and errors are aggregated and shipped through the
// Kafka producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	lc := cfg.Logging.Config
	base, err := applogger.New(&lc)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l := base.With(applogger.String("env", cfg.Environment))
	if producer != nil && cfg.Logging.Collect.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			Service:        cfg.Logging.Service,
			TimeInterval:   cfg.Logging.Collect.Interval,
			CountThreshold: cfg.Logging.Collect.Threshold,
			Topic:          cfg.Logging.Collect.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and the database.
// Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx, pkgch.Config{
		Host:             cfg.ClickHouse.Host,
		Port:             cfg.ClickHouse.Port,
		Database:         cfg.ClickHouse.Database,
		User:             cfg.ClickHouse.User,
		Password:         cfg.ClickHouse.Password,
		HTTP:             cfg.ClickHouse.UseHTTP,
		Compression:      cfg.ClickHouse.Compression,
		DialTimeout:      cfg.ClickHouse.DialTimeout,
		ReadTimeout:      cfg.ClickHouse.ReadTimeout,
		MaxExecutionTime: cfg.ClickHouse.MaxExecutionTime,
		AsyncInsert:      cfg.ClickHouse.AsyncInsert,
		WaitForAsync:     cfg.ClickHouse.WaitForAsync,
		ConnectAttempts:  cfg.ClickHouse.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideEventStore creates the impact_events repository and its table.
func ProvideEventStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.EventStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewEventRepository(ch, cfg.ClickHouse.RetentionDays)
	store.SetLogger(l)
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("event store: %w", err)
	}
	return store, nil
}

// ProvideRecommendationStore creates the recommendations repository and its table.
func ProvideRecommendationStore(ch *pkgch.Client, l *applogger.Logger) (repository.RecommendationStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewRecommendationRepository(ch)
	store.SetLogger(l)
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("recommendation store: %w", err)
	}
	return store, nil
}

// ProvideRedisCache connects to Redis. The queue shares its client.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	rc, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.PoolSize / 2,
		Prefix:       "impactrank",
	})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideRedisClient exposes the cache's client to the queue and health checks.
func ProvideRedisClient(rc *cache.RedisCache) *redis.Client {
	return rc.Client()
}

// ProvideCache layers a short-lived memory cache over Redis.
func ProvideCache(rc *cache.RedisCache, cfg *config.Config) cache.Service {
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
		cache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
	)
}

// ProvideRankingCache keeps the latest ranking in the cache.
func ProvideRankingCache(c cache.Service, cfg *config.Config) repository.RankingCache {
	return internalrepo.NewCachedRankings(c, cfg.Cache.LatestTTL)
}

// ProvideKafkaProducer creates a Kafka producer. Returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRankingPublisher publishes rankings to the output topic.
func ProvideRankingPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.RankingPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.OutputTopic)
}

// ProvideEventHistory picks where ranking runs read history from.
func ProvideEventHistory(cfg *config.Config, events repository.EventStore) repository.EventHistory {
	switch cfg.History.Source {
	case "http":
		return history.NewHTTPSource(cfg.History.URL, cfg.History.Timeout,
			history.WithAttempts(cfg.History.Attempts))
	case "clickhouse":
		if events != nil {
			return events
		}
	}
	return nil
}

// ProvideEngineConfig maps the engine section onto the scoring defaults.
// The reference time is resolved per run.
func ProvideEngineConfig(cfg *config.Config) impact.Config {
	c := impact.DefaultConfig(time.Time{})
	c.DecayBase = cfg.Engine.DecayBase
	c.HalfLifeHours = cfg.Engine.HalfLifeHours
	c.MaxAgeHours = cfg.Engine.MaxAgeHours
	c.PropagateScopes = cfg.Engine.PropagateScopes
	return c
}

// ProvideRankingUseCase creates the ranking use case.
func ProvideRankingUseCase(engine impact.Config, h repository.EventHistory, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.RankingUseCase {
	return usecase.NewRankingUseCase(engine, h, cfg.History.Timeout, m, l)
}

// ProvideRecommendationsUseCase creates the stored recommendations use case.
func ProvideRecommendationsUseCase(rc repository.RankingCache, store repository.RecommendationStore, l *applogger.Logger) *usecase.RecommendationsUseCase {
	return usecase.NewRecommendationsUseCase(rc, store, l)
}

// ProvideHub creates the websocket hub. Returns nil when disabled.
func ProvideHub(cfg *config.Config, rc repository.RankingCache, l *applogger.Logger) *ws.Hub {
	if !cfg.WebSocket.Enabled {
		return nil
	}
	return ws.NewHub(ws.Config{
		Path:         cfg.WebSocket.Path,
		PingInterval: cfg.WebSocket.PingInterval,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	}, rc, l)
}

// ProvideRefreshJob creates the ranking.refresh queue job.
func ProvideRefreshJob(
	ranking *usecase.RankingUseCase,
	store repository.RecommendationStore,
	rc repository.RankingCache,
	pub repository.RankingPublisher,
	hub *ws.Hub,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.RefreshJob {
	var bc usecase.RankingBroadcaster
	if hub != nil {
		bc = hub
	}
	return usecase.NewRefreshJob(ranking, store, rc, pub, bc, m, cfg.Engine.TopN, l)
}

// ProvideQueue creates the Redis queue that runs refresh jobs.
func ProvideQueue(cfg *config.Config, client *redis.Client, job *usecase.RefreshJob, l *applogger.Logger) *queue.RedisQueue {
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.Queue.Workers,
		MaxPending: cfg.Queue.MaxPending,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, client, queue.WithKeyPrefix("impactrank:queue"))
	q.RegisterJob(job)
	return q
}

// ProvideKafkaConsumer creates the ingest consumer. Returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook(l, cfg.Kafka.Consumer.SlowAfter))
	return consumer, nil
}

// ProvideIngestHandler handles raw record batches from the events topic.
func ProvideIngestHandler(cfg *config.Config, events repository.EventStore, q *queue.RedisQueue, m repository.Metrics, l *applogger.Logger) *usecase.IngestHandler {
	var w usecase.EventWriter
	if events != nil {
		w = events
	}
	return usecase.NewIngestHandler(cfg.Kafka.EventsTopic, w, q, m, l)
}

// ProvideRankingsHandler creates the HTTP handler with health checks and the
// rank response cache.
func ProvideRankingsHandler(
	cfg *config.Config,
	l *applogger.Logger,
	ranking *usecase.RankingUseCase,
	recs *usecase.RecommendationsUseCase,
	c cache.Service,
	ch *pkgch.Client,
	client *redis.Client,
	q *queue.RedisQueue,
) *api.RankingsEchoHandler {
	h := api.NewRankingsEchoHandler(l, ranking, recs)
	h.SetRankCache(c, cfg.Cache.RankTTL)
	h.Use(ratelimit.Middleware(ratelimit.New(), cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
	h.AddHealthCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	h.AddHealthCheck("queue", func(ctx context.Context) error {
		st, err := q.Stats(ctx)
		if err != nil {
			return err
		}
		if cfg.Queue.MaxPending > 0 && st.Pending >= int64(cfg.Queue.MaxPending) {
			return queue.ErrQueueFull
		}
		return nil
	})
	if ch != nil {
		h.AddHealthCheck("clickhouse", ch.Health)
	}
	return h
}

// ProvideHTTPServer creates the echo server with the API and websocket routes.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, rankings *api.RankingsEchoHandler, hub *ws.Hub) *xhttp.Server {
	handlers := xhttp.Handlers{rankings}
	if hub != nil {
		handlers = append(handlers, hub)
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handlers,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(cfg.Server.BodyLimit),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	ingest *usecase.IngestHandler,
	producer *pkgkafka.Producer,
	hub *ws.Hub,
	ch *pkgch.Client,
	client *redis.Client,
) *server.App {
	return server.New(cfg, l, server.Components{
		HTTP:       httpServer,
		Queue:      q,
		Consumer:   consumer,
		Ingest:     ingest,
		Producer:   producer,
		Hub:        hub,
		ClickHouse: ch,
		Redis:      client,
	})
}

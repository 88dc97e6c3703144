package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"ImpactRank/internal/handler/ws"
	pkgch "ImpactRank/pkg/clickhouse"
	"ImpactRank/pkg/config"
	xhttp "ImpactRank/pkg/http"
	pkgkafka "ImpactRank/pkg/kafka"
	applogger "ImpactRank/pkg/logger"
	"ImpactRank/pkg/queue"
)

// Components are the long-running parts the App starts and stops. Optional
// ones are nil when disabled in config.
type Components struct {
	HTTP       *xhttp.Server
	Queue      *queue.RedisQueue
	Consumer   *pkgkafka.Consumer
	Ingest     pkgkafka.MessageHandler
	Producer   *pkgkafka.Producer
	Hub        *ws.Hub
	ClickHouse *pkgch.Client
	Redis      *redis.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	l   *applogger.Logger
	c   Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, l: l, c: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches every component. The queue starts before the Kafka
// consumer because ingest enqueues refresh jobs.
func (a *App) Start() error {
	if a.c.Queue != nil {
		if err := a.c.Queue.Start(); err != nil {
			a.l.Error("redis queue start error", applogger.Error(err))
			return err
		}
	}

	if a.c.Consumer != nil && a.c.Ingest != nil {
		a.c.Consumer.RegisterHandler(a.c.Ingest)
		if err := a.c.Consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.c.Ingest.Topic()))
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	return nil
}

// Shutdown stops intake first, then drains background work, then closes
// clients. It keeps going past errors and returns them joined.
func (a *App) Shutdown(ctx context.Context) error {
	a.l.Info("shutting down")
	var errs []error

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}

	drainCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(drainCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(drainCtx); err != nil {
			a.l.Warn("redis queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	// The collector publishes through the producer, so it goes first.
	a.l.RemoveCollector()
	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.c.Redis != nil {
		if err := a.c.Redis.Close(); err != nil {
			a.l.Warn("redis close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}

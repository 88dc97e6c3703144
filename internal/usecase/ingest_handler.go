package usecase

import (
	"context"
	"fmt"
	"time"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	"ImpactRank/internal/services/impact"
	pkgkafka "ImpactRank/pkg/kafka"
	applogger "ImpactRank/pkg/logger"
	"ImpactRank/pkg/queue"
)

// RefreshJobType is the queue message type that triggers a re-rank.
const RefreshJobType = "ranking.refresh"

// RefreshPayload carries an ingested batch to the refresh job.
type RefreshPayload struct {
	Records    []models.RawRecord `json:"records"`
	ReceivedAt time.Time          `json:"received_at"`
	Source     string             `json:"source"`
}

// EventWriter is the write side of the event store.
type EventWriter interface {
	SaveMany(ctx context.Context, events []models.Event, ingestedAt time.Time) error
}

// IngestHandler consumes extracted event batches from Kafka, stores the valid
// events and schedules a refresh for them.
type IngestHandler struct {
	topic   string
	store   EventWriter
	queue   queue.Publisher
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
}

var _ pkgkafka.MessageHandler = (*IngestHandler)(nil)

// NewIngestHandler creates the handler. store and q may be nil when
// persistence or async refresh is disabled.
func NewIngestHandler(topic string, store EventWriter, q queue.Publisher, metrics domrepo.Metrics, l *applogger.Logger) *IngestHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &IngestHandler{topic: topic, store: store, queue: q, metrics: metrics, l: l, now: time.Now}
}

func (h *IngestHandler) Topic() string { return h.topic }

// Handle accepts a JSON array of raw records, a single record, or either one
// wrapped in a markdown code fence.
func (h *IngestHandler) Handle(ctx context.Context, b []byte) error {
	raw, err := impact.DecodeRecords(b)
	if err != nil {
		h.recordError("consumer_decode")
		return fmt.Errorf("decode batch: %w", err)
	}

	events, errs := impact.ParseEvents(raw)
	if len(errs) > 0 {
		h.recordError("ingest_rejected")
		h.l.Warn("ingest batch has rejected records",
			applogger.String("topic", h.topic),
			applogger.Int("records", len(raw)),
			applogger.Int("rejected", len(errs)),
			applogger.String("first", errs[0].Error()),
		)
	}
	if h.metrics != nil {
		h.metrics.RecordEvents("kafka", len(events))
	}
	if len(events) == 0 {
		return nil
	}

	receivedAt := h.now().UTC()
	if h.store != nil {
		start := time.Now()
		err := h.store.SaveMany(ctx, events, receivedAt)
		if h.metrics != nil {
			h.metrics.RecordLatency("events_insert", time.Since(start).Seconds())
		}
		if err != nil {
			h.recordError("store")
			h.l.Error("persist ingested events failed",
				applogger.Int("events", len(events)),
				applogger.Error(err),
			)
			return fmt.Errorf("save events: %w", err)
		}
	}

	if h.queue == nil {
		return nil
	}
	payload := RefreshPayload{
		Records:    make([]models.RawRecord, 0, len(events)),
		ReceivedAt: receivedAt,
		Source:     "kafka",
	}
	for _, e := range events {
		payload.Records = append(payload.Records, models.ToRecord(e))
	}
	if err := h.queue.PublishMessage(ctx, RefreshJobType, payload); err != nil {
		h.recordError("enqueue")
		return fmt.Errorf("enqueue refresh: %w", err)
	}
	return nil
}

func (h *IngestHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

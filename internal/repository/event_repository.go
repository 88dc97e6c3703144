package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	pkgch "ImpactRank/pkg/clickhouse"
	applogger "ImpactRank/pkg/logger"
)

const (
	eventsTable     = "impact_events"
	insertChunkSize = 2000
)

// EventRepository stores parsed events in ClickHouse and serves them back as
// raw records for the history window.
type EventRepository struct {
	ch            *pkgch.Client
	db            *sql.DB
	table         string
	retentionDays int
	l             *applogger.Logger
}

var _ domrepo.EventStore = (*EventRepository)(nil)

// NewEventRepository creates the ClickHouse event store. retentionDays <= 0
// disables the table TTL.
func NewEventRepository(ch *pkgch.Client, retentionDays int) *EventRepository {
	return &EventRepository{
		ch:            ch,
		db:            ch.DB(),
		table:         ch.Table(eventsTable),
		retentionDays: retentionDays,
		l:             applogger.NewNop(),
	}
}

// SetLogger injects a structured logger.
func (s *EventRepository) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// EventsSchema returns the DDL for the events table.
func EventsSchema(table string, retentionDays int) []string {
	ttl := ""
	if retentionDays > 0 {
		ttl = fmt.Sprintf("\n        TTL toDateTime(ingested_at) + INTERVAL %d DAY", retentionDays)
	}
	// event_id is the content hash; re-ingesting an association replaces the
	// older row and refreshes its event_time.
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            event_id    String,
            type        LowCardinality(String),
            entity      String,
            location    String,
            impact      Float64,
            event_time  DateTime64(3, 'UTC'),
            ingested_at DateTime64(3, 'UTC'),
            payload     String
        )
        ENGINE = ReplacingMergeTree(ingested_at)
        ORDER BY (type, event_id)%s
    `, table, ttl)}
}

func (s *EventRepository) Init(ctx context.Context) error {
	if err := s.ch.InitSchema(ctx, EventsSchema(s.table, s.retentionDays)); err != nil {
		return fmt.Errorf("init events schema: %w", err)
	}
	return nil
}

// SaveMany inserts events in multi-row chunks. Associations carry no
// timestamp of their own and are stored at ingestedAt.
func (s *EventRepository) SaveMany(ctx context.Context, events []models.Event, ingestedAt time.Time) error {
	if len(events) == 0 {
		return nil
	}
	start := time.Now()
	ingestedAt = ingestedAt.UTC()

	for from := 0; from < len(events); from += insertChunkSize {
		to := from + insertChunkSize
		if to > len(events) {
			to = len(events)
		}

		values := make([]string, 0, to-from)
		args := make([]interface{}, 0, (to-from)*8)
		for _, e := range events[from:to] {
			if e == nil {
				continue
			}
			row, err := newEventRow(e, ingestedAt)
			if err != nil {
				return err
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				row.id,
				row.typ,
				row.entity,
				row.location,
				row.impact,
				row.eventTime,
				ingestedAt,
				row.payload,
			)
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO %s (event_id, type, entity, location, impact, event_time, ingested_at, payload) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse save_events error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("insert events: %w", err)
		}
	}

	s.l.Debug("clickhouse save_events ok",
		applogger.String("table", s.table),
		applogger.Int("events", len(events)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// GetSince returns records with event_time >= cutoff, newest first.
// Rows whose payload no longer decodes are skipped.
func (s *EventRepository) GetSince(ctx context.Context, cutoff time.Time) ([]models.RawRecord, error) {
	start := time.Now()
	const qtpl = `
        SELECT payload
        FROM %s FINAL
        WHERE event_time >= ?
        ORDER BY event_time DESC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), cutoff.UTC())
	if err != nil {
		s.l.Error("clickhouse get_since query error",
			applogger.String("table", s.table),
			applogger.Time("cutoff", cutoff),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get since: %w", err)
	}
	defer rows.Close()

	out := make([]models.RawRecord, 0, 256)
	skipped := 0
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var rec models.RawRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if skipped > 0 {
		s.l.Warn("clickhouse get_since skipped undecodable rows",
			applogger.String("table", s.table),
			applogger.Int("skipped", skipped),
		)
	}
	s.l.Debug("clickhouse get_since ok",
		applogger.String("table", s.table),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *EventRepository) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *EventRepository) Close() error {
	return nil // pool is owned by the clickhouse client
}

type eventRow struct {
	id        string
	typ       string
	entity    string
	location  string
	impact    float64
	eventTime time.Time
	payload   string
}

func newEventRow(e models.Event, ingestedAt time.Time) (eventRow, error) {
	rec := models.ToRecord(e)
	payload, err := json.Marshal(rec)
	if err != nil {
		return eventRow{}, fmt.Errorf("encode %s event: %w", e.Type(), err)
	}
	sum := sha256.Sum256(payload)

	enc := rowColumns{row: eventRow{
		id:        hex.EncodeToString(sum[:16]),
		typ:       string(e.Type()),
		eventTime: ingestedAt,
		payload:   string(payload),
	}}
	e.Accept(&enc)
	return enc.row, nil
}

// rowColumns fills the indexed columns of a row from an event.
type rowColumns struct {
	row eventRow
}

func (r *rowColumns) report(rep models.Report) {
	r.row.impact = rep.Impact
	r.row.eventTime = rep.Timestamp.UTC()
}

func (r *rowColumns) VisitAsset(e models.AssetEvent) {
	r.report(e.Report)
	r.row.entity = e.Ticker
}

func (r *rowColumns) VisitScope(e models.ScopeEvent) {
	r.report(e.Report)
	r.row.entity = e.Scope
	r.row.location = e.Location
}

func (r *rowColumns) VisitMacro(e models.MacroEvent) {
	r.report(e.Report)
	r.row.entity = e.Scope
	r.row.location = e.Location
}

func (r *rowColumns) VisitTag(e models.TagAssociation) {
	r.row.entity = e.Ticker
}

func (r *rowColumns) VisitLocation(e models.LocationAssociation) {
	r.row.entity = e.Ticker
	r.row.location = e.Location
}

func (r *rowColumns) VisitScopeRelation(e models.ScopeRelation) {
	r.row.entity = e.Scope1
}

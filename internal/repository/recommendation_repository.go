package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	pkgch "ImpactRank/pkg/clickhouse"
	applogger "ImpactRank/pkg/logger"
)

const recommendationsTable = "recommendations"

// RecommendationRepository persists ranking runs, one row per ranked ticker.
type RecommendationRepository struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.RecommendationStore = (*RecommendationRepository)(nil)

func NewRecommendationRepository(ch *pkgch.Client) *RecommendationRepository {
	return &RecommendationRepository{
		ch:    ch,
		db:    ch.DB(),
		table: ch.Table(recommendationsTable),
		l:     applogger.NewNop(),
	}
}

// SetLogger injects a structured logger.
func (s *RecommendationRepository) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// RecommendationsSchema returns the DDL for the recommendations table.
func RecommendationsSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            run_id     String,
            rank       UInt32,
            ticker     String,
            score      Float64,
            refs       Array(String),
            links      Array(String),
            created_at DateTime64(3, 'UTC')
        )
        ENGINE = MergeTree
        ORDER BY (ticker, created_at, run_id)
    `, table)}
}

func (s *RecommendationRepository) Init(ctx context.Context) error {
	if err := s.ch.InitSchema(ctx, RecommendationsSchema(s.table)); err != nil {
		return fmt.Errorf("init recommendations schema: %w", err)
	}
	return nil
}

// SaveRanking writes every recommendation of the run in one insert.
// An empty ranking writes nothing.
func (s *RecommendationRepository) SaveRanking(ctx context.Context, r *models.Ranking) error {
	if r == nil {
		return nil
	}
	records := r.Records()
	if len(records) == 0 {
		return nil
	}

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*7)
	for _, rec := range records {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			rec.RunID,
			uint32(rec.Rank),
			rec.Ticker,
			rec.Score,
			rec.References,
			rec.Links,
			rec.CreatedAt.UTC(),
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (run_id, rank, ticker, score, refs, links, created_at) VALUES %s",
		s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse save_ranking error",
			applogger.String("table", s.table),
			applogger.String("run_id", r.RunID),
			applogger.Int("rows", len(records)),
			applogger.Error(err),
		)
		return fmt.Errorf("insert recommendations: %w", err)
	}
	return nil
}

// Latest returns the most recent run ordered by rank.
func (s *RecommendationRepository) Latest(ctx context.Context, limit int) ([]models.RecommendationRecord, error) {
	const qtpl = `
        SELECT run_id, rank, ticker, score, refs, links, created_at
        FROM %[1]s
        WHERE run_id = (SELECT argMax(run_id, created_at) FROM %[1]s)
        ORDER BY rank ASC
        LIMIT ?
    `
	return s.query(ctx, "latest", fmt.Sprintf(qtpl, s.table), limit)
}

// ByTicker returns stored recommendations for one ticker, newest first.
func (s *RecommendationRepository) ByTicker(ctx context.Context, ticker string, limit int) ([]models.RecommendationRecord, error) {
	const qtpl = `
        SELECT run_id, rank, ticker, score, refs, links, created_at
        FROM %s
        WHERE ticker = ?
        ORDER BY created_at DESC
        LIMIT ?
    `
	return s.query(ctx, "by_ticker", fmt.Sprintf(qtpl, s.table), ticker, limit)
}

func (s *RecommendationRepository) query(ctx context.Context, op, q string, args ...interface{}) ([]models.RecommendationRecord, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse recommendations query error",
			applogger.String("op", op),
			applogger.String("table", s.table),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query recommendations %s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.RecommendationRecord, 0, 64)
	for rows.Next() {
		var (
			rec  models.RecommendationRecord
			rank uint32
		)
		if err := rows.Scan(&rec.RunID, &rank, &rec.Ticker, &rec.Score, &rec.References, &rec.Links, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		rec.Rank = int(rank)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse recommendations query ok",
		applogger.String("op", op),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

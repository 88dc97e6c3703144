package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	"ImpactRank/internal/services/impact"
	xhttp "ImpactRank/pkg/http"
)

// HTTPSource reads history from a remote store exposing
// GET {base}/events?since=<RFC3339>.
type HTTPSource struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
	backoff  time.Duration
}

var _ domrepo.EventHistory = (*HTTPSource)(nil)

// Option configures HTTPSource.
type Option func(*HTTPSource)

// WithAttempts sets how many times a failed request is tried.
func WithAttempts(n int) Option {
	return func(s *HTTPSource) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithBackoff sets the linear backoff step between attempts.
func WithBackoff(d time.Duration) Option {
	return func(s *HTTPSource) {
		s.backoff = d
	}
}

// NewHTTPSource builds a history client with timeout and base URL.
func NewHTTPSource(baseURL string, timeout time.Duration, opts ...Option) *HTTPSource {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	s := &HTTPSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		attempts: 1,
		backoff:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSince fetches records at or after cutoff. The body may be a bare JSON
// array or the {status, message, data} envelope this service writes.
func (s *HTTPSource) GetSince(ctx context.Context, cutoff time.Time) ([]models.RawRecord, error) {
	if s.client == nil || s.baseURL == "" {
		return nil, fmt.Errorf("history http client not initialized")
	}

	query := url.Values{"since": {cutoff.UTC().Format(time.RFC3339Nano)}}
	var body []byte
	var err error
	for i := 1; i <= s.attempts; i++ {
		body, err = s.client.Get(ctx, s.baseURL+"/events", query)
		if err == nil {
			break
		}
		var se *xhttp.StatusError
		if i == s.attempts || (errors.As(err, &se) && !se.Retryable()) {
			return nil, fmt.Errorf("get events since %s: %w", cutoff.Format(time.RFC3339), err)
		}
		select {
		case <-time.After(time.Duration(i) * s.backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return decodeHistory(body)
}

// decodeHistory accepts a bare record array or the service envelope. An
// envelope without data is an empty history, never a record.
func decodeHistory(body []byte) ([]models.RawRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		data, hasData := env["data"]
		if _, hasStatus := env["status"]; hasData || hasStatus {
			trimmed = bytes.TrimSpace(data)
		}
	}
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []models.RawRecord{}, nil
	}
	recs, err := impact.DecodeRecords(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return recs, nil
}

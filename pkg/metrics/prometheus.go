package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "impactrank"

// Recorder publishes pipeline metrics to Prometheus.
type Recorder struct {
	events  *prometheus.CounterVec
	errors  *prometheus.CounterVec
	latency *prometheus.HistogramVec

	scoreMu sync.Mutex
	score   *prometheus.GaugeVec
	ranked  prometheus.Gauge
}

// New registers on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg, so tests can use a private registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Parsed events by source.",
		}, []string{"source"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by kind.",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of ranking, history and storage operations.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		score: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ticker_score",
			Help:      "Score of each ticker in the latest ranking.",
		}, []string{"ticker"}),
		ranked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ranked_tickers",
			Help:      "Number of tickers in the latest ranking.",
		}),
	}
}

func (r *Recorder) RecordEvents(source string, n int) {
	r.events.WithLabelValues(source).Add(float64(n))
}

func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordScores drops tickers that left the ranking before setting the rest.
func (r *Recorder) RecordScores(scores map[string]float64) {
	r.scoreMu.Lock()
	defer r.scoreMu.Unlock()
	r.score.Reset()
	for ticker, s := range scores {
		r.score.WithLabelValues(ticker).Set(s)
	}
	r.ranked.Set(float64(len(scores)))
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

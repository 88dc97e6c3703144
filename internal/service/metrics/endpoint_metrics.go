package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EndpointLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "impactrank",
		Subsystem: "api",
		Name:      "latency_seconds",
		Help:      "Latency of ranking endpoints.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	EndpointErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "impactrank",
		Subsystem: "api",
		Name:      "errors_total",
		Help:      "Rejected and failed ranking requests by status class.",
	}, []string{"endpoint", "class"})

	RankCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "impactrank",
		Subsystem: "api",
		Name:      "rank_cache_total",
		Help:      "Rank response cache lookups by result.",
	}, []string{"result"})
)

// Register is safe to call from every handler constructor.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(EndpointLatency, EndpointErrors, RankCacheHits)
	})
}

// Observe records latency for endpoint and counts 4xx and 5xx statuses.
func Observe(endpoint string, start time.Time, status int) {
	EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if status >= 400 {
		EndpointErrors.WithLabelValues(endpoint, strconv.Itoa(status/100)+"xx").Inc()
	}
}

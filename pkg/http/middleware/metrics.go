package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "ImpactRank/pkg/logger"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	size     *prometheus.HistogramVec
}

var (
	httpOnce sync.Once
	httpM    *httpMetrics
)

func loadHTTPMetrics() *httpMetrics {
	httpOnce.Do(func() {
		httpM = &httpMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "impactrank", Subsystem: "http",
				Name: "requests_total", Help: "Requests by route, method and status.",
			}, []string{"route", "method", "status"}),
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "impactrank", Subsystem: "http",
				Name: "request_duration_seconds", Help: "Request latency.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2.5, 9),
			}, []string{"route", "method", "class"}),
			inFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "impactrank", Subsystem: "http",
				Name: "in_flight_requests", Help: "Requests currently being served.",
			}, []string{"route", "method"}),
			size: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "impactrank", Subsystem: "http",
				Name: "response_size_bytes", Help: "Response body size.",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			}, []string{"route", "method", "class"}),
		}
	})
	return httpM
}

// Metrics records request metrics labelled by the echo route template, so
// /api/recommendations/:ticker stays one series. 5xx responses are logged
// at Error and requests slower than slow at Warn.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := loadHTTPMetrics()
	if l == nil {
		l = applogger.NewNop()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route, method := c.Path(), c.Request().Method
			if route == "" {
				route = "unmatched"
			}
			inFlight := m.inFlight.WithLabelValues(route, method)
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			took := time.Since(start)

			res := c.Response()
			class := statusClass(res.Status)
			m.requests.WithLabelValues(route, method, strconv.Itoa(res.Status)).Inc()
			m.duration.WithLabelValues(route, method, class).Observe(took.Seconds())
			m.size.WithLabelValues(route, method, class).Observe(float64(res.Size))

			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", res.Status),
				applogger.Duration("took_ms", took),
				applogger.Int64("bytes", res.Size),
			}
			if res.Status >= 500 {
				l.Error("http request failed", fields...)
			} else if slow > 0 && took >= slow {
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}

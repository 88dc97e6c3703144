package kafka

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type consumerMetrics struct {
	handled   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	laneDepth *prometheus.GaugeVec
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	consumerOnce sync.Once
	consumerM    *consumerMetrics
	producerOnce sync.Once
	producerM    *producerMetrics
)

func loadConsumerMetrics() *consumerMetrics {
	consumerOnce.Do(func() {
		consumerM = &consumerMetrics{
			handled: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "impactrank", Subsystem: "kafka_consumer",
				Name: "messages_total", Help: "Consumed messages by final outcome.",
			}, []string{"topic", "result"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "impactrank", Subsystem: "kafka_consumer",
				Name: "handle_seconds", Help: "Handling time per message including retries.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			}, []string{"topic"}),
			laneDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "impactrank", Subsystem: "kafka_consumer",
				Name: "lane_depth", Help: "Messages buffered per lane.",
			}, []string{"lane"}),
		}
	})
	return consumerM
}

func loadProducerMetrics() *producerMetrics {
	producerOnce.Do(func() {
		producerM = &producerMetrics{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "impactrank", Subsystem: "kafka_producer",
				Name: "messages_total", Help: "Published messages by result.",
			}, []string{"topic", "result"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "impactrank", Subsystem: "kafka_producer",
				Name: "bytes_total", Help: "Published payload bytes.",
			}, []string{"topic"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "impactrank", Subsystem: "kafka_producer",
				Name: "publish_seconds", Help: "Publish latency.",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return producerM
}

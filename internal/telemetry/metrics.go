package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tasks_enqueued_total", Help: "Total enqueued jobs"}, []string{"kind"})

	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "tasks_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})

	JobSuccess    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tasks_completed_total", Help: "Jobs that reached SUCCESS"}, []string{"kind"})
	JobFailure    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tasks_failed_total", Help: "Jobs that reached FAILURE"}, []string{"kind"})
	JobDeadLetter = prometheus.NewCounter(prometheus.CounterOpts{Name: "tasks_dead_letter_total", Help: "Jobs moved to the DLQ after repeated redelivery"})

	QueueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tasks_queue_depth", Help: "Ready queue depth"})
	InFlightGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tasks_inflight", Help: "Jobs currently leased"})

	CacheHits   = prometheus.NewCounter(prometheus.CounterOpts{Name: "tasks_render_cache_hits_total", Help: "Markdown render cache hits"})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{Name: "tasks_render_cache_misses_total", Help: "Markdown render cache misses"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			RateLimitRejects,
			JobSuccess,
			JobFailure,
			JobDeadLetter,
			QueueDepthGauge,
			InFlightGauge,
			CacheHits,
			CacheMisses,
		)
	})
	return promhttp.Handler()
}

package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	generatorRuns   prometheus.Counter
	placedTotal     prometheus.Counter
	unplacedTotal   prometheus.Counter
	commitRejects   prometheus.Counter
	generatorTime   prometheus.Observer
}

// NewMetricsService registers the service's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_cache_hits_total",
		Help: "Total grid cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_cache_misses_total",
		Help: "Total grid cache misses",
	})

	generatorRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_generator_runs_total",
		Help: "Total generator runs",
	})

	placedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_sessions_placed_total",
		Help: "Sessions placed across generator runs",
	})

	unplacedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_sessions_unplaced_total",
		Help: "Sessions left unplaced across generator runs",
	})

	commitRejects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_commit_rejections_total",
		Help: "Proposal cells rejected by commit-time validation",
	})

	generatorTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_generator_duration_seconds",
		Help:    "Duration of generator runs",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, generatorRuns, placedTotal, unplacedTotal, commitRejects, generatorTime, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		generatorRuns:   generatorRuns,
		placedTotal:     placedTotal,
		unplacedTotal:   unplacedTotal,
		commitRejects:   commitRejects,
		generatorTime:   generatorTime,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup records a grid cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordGeneratorRun captures the outcome of one generator run.
func (m *MetricsService) RecordGeneratorRun(placed, unplaced int, duration time.Duration) {
	if m == nil {
		return
	}
	m.generatorRuns.Inc()
	m.placedTotal.Add(float64(placed))
	m.unplacedTotal.Add(float64(unplaced))
	m.generatorTime.Observe(duration.Seconds())
}

// RecordCommitRejections counts proposal cells rejected at commit.
func (m *MetricsService) RecordCommitRejections(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.commitRejects.Add(float64(count))
}

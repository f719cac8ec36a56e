package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statsync"

// Collector exposes Prometheus metrics for inbound HTTP requests and sync cycles.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	cyclesTotal      *prometheus.CounterVec
	cycleDuration    *prometheus.HistogramVec
	accountsTotal    *prometheus.CounterVec
	inactiveAccounts prometheus.Gauge
	lastCycle        prometheus.Gauge
	skippedTicks     prometheus.Counter
}

// NewCollector constructs a collector with its own registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Sync cycles run, by trigger and result.",
		}, []string{"trigger", "result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full sync cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"trigger"}),
		accountsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "accounts_total",
			Help:      "Per-account sync outcomes. kind is none on success.",
		}, []string{"outcome", "kind"}),
		inactiveAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "inactive_accounts",
			Help:      "Accounts classified inactive by the most recent scan.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the most recent sync cycle finished.",
		}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "skipped_ticks_total",
			Help:      "Scheduled ticks skipped because a cycle was still running.",
		}),
	}

	toRegister := []prometheus.Collector{
		c.requestDuration,
		c.requestTotal,
		c.cyclesTotal,
		c.cycleDuration,
		c.accountsTotal,
		c.inactiveAccounts,
		c.lastCycle,
		c.skippedTicks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, m := range toRegister {
		if err := registry.Register(m); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// ObserveCycle records a finished sync cycle.
func (c *Collector) ObserveCycle(trigger, result string, duration time.Duration, finishedAt time.Time) {
	c.cyclesTotal.WithLabelValues(trigger, result).Inc()
	c.cycleDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	c.lastCycle.Set(float64(finishedAt.Unix()))
}

// ObserveAccount records one account outcome. An empty kind means success.
func (c *Collector) ObserveAccount(kind string) {
	if kind == "" {
		c.accountsTotal.WithLabelValues("success", "none").Inc()
		return
	}
	c.accountsTotal.WithLabelValues("failure", kind).Inc()
}

// SetInactive records the size of the latest inactive set.
func (c *Collector) SetInactive(n int) {
	c.inactiveAccounts.Set(float64(n))
}

// SkippedTick records a scheduled tick dropped because a cycle was in flight.
func (c *Collector) SkippedTick() {
	c.skippedTicks.Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

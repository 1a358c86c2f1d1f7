package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes enrollment client metrics on a private registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	sessionRenewals  *prometheus.CounterVec
	syncOps          *prometheus.CounterVec
	pagesTotal       *prometheus.CounterVec
	registrySize     prometheus.Gauge
	lastSyncUnixTime prometheus.Gauge
}

// New creates a fresh registry with the client metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "depsync",
		Name:      "requests_total",
		Help:      "Requests sent to the enrollment service",
	}, []string{"method", "path", "status"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "depsync",
		Name:      "request_duration_seconds",
		Help:      "Round trip duration of enrollment service requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	sessionRenewals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "depsync",
		Name:      "session_renewals_total",
		Help:      "Session token renewals by result",
	}, []string{"result"})

	syncOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "depsync",
		Name:      "sync_ops_total",
		Help:      "Device records applied to the local registry by operation",
	}, []string{"op", "outcome"})

	pagesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "depsync",
		Name:      "pages_total",
		Help:      "Listing and sync pages consumed",
	}, []string{"kind"})

	registrySize := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "depsync",
		Name:      "registry_devices",
		Help:      "Devices currently held in the local registry",
	})

	lastSync := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "depsync",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix time of the last completed listing or sync",
	})

	registry.MustRegister(
		requests,
		requestDuration,
		sessionRenewals,
		syncOps,
		pagesTotal,
		registrySize,
		lastSync,
	)

	return &Metrics{
		registry:         registry,
		requests:         requests,
		requestDuration:  requestDuration,
		sessionRenewals:  sessionRenewals,
		syncOps:          syncOps,
		pagesTotal:       pagesTotal,
		registrySize:     registrySize,
		lastSyncUnixTime: lastSync,
	}
}

// ObserveRequest records one request/response exchange. status 0 means the
// exchange failed before a response arrived.
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := "error"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
	}
	m.requests.With(prometheus.Labels{"method": method, "path": path, "status": statusLabel}).Inc()
	m.requestDuration.With(prometheus.Labels{"method": method, "path": path}).Observe(duration.Seconds())
}

// IncSessionRenewal counts a renewal attempt with result "ok" or "failed".
func (m *Metrics) IncSessionRenewal(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.sessionRenewals.WithLabelValues(result).Inc()
}

// IncSyncOp counts one applied (or skipped) device record.
func (m *Metrics) IncSyncOp(op, outcome string) {
	if m == nil {
		return
	}
	m.syncOps.WithLabelValues(op, outcome).Inc()
}

// IncPage counts one consumed page of kind "fetch" or "sync".
func (m *Metrics) IncPage(kind string) {
	if m == nil {
		return
	}
	m.pagesTotal.WithLabelValues(kind).Inc()
}

// SetRegistrySize records the current registry size and completion time.
func (m *Metrics) SetRegistrySize(n int, at time.Time) {
	if m == nil {
		return
	}
	m.registrySize.Set(float64(n))
	m.lastSyncUnixTime.Set(float64(at.Unix()))
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

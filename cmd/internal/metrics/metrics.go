// Package metrics holds warden's Prometheus collectors.
//
// Collectors live on an explicit registry rather than the global default so tests and multiple
// app instances in one process do not collide.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"warden/cmd/internal/auth/audit"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warden"

// Metrics is the set of collectors. The zero value is not usable; use New.
type Metrics struct {
	reg *prometheus.Registry

	flows        *prometheus.CounterVec
	auditEvents  *prometheus.CounterVec
	auditDropped prometheus.Counter
	auditFailed  prometheus.Counter
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	httpDuration *prometheus.HistogramVec
}

// New registers every collector, plus Go runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		flows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_flows_total",
			Help:      "Login, refresh and logout attempts by result.",
		}, []string{"flow", "result"}),
		auditEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Audit events written, by outcome class.",
		}, []string{"class"}),
		auditDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit events dropped because a queue was full or the recorder was closed.",
		}),
		auditFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit events the store refused.",
		}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "runs_total",
			Help:      "Maintenance job runs by result.",
		}, []string{"job", "result"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "run_duration_seconds",
			Help:      "Maintenance job run time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ActiveSessions registers a gauge that reads count on every scrape.
func (m *Metrics) ActiveSessions(count func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Entries in the active session registry.",
	}, func() float64 { return float64(count()) }))
}

// Flow counts one login / refresh / logout attempt.
func (m *Metrics) Flow(flow, result string) {
	m.flows.WithLabelValues(flow, result).Inc()
}

// EventRecorded implements audit.Observer.
func (m *Metrics) EventRecorded(outcome string) {
	class := "other"
	switch {
	case audit.IsFailure(outcome):
		class = "failure"
	case audit.IsSuccess(outcome):
		class = "success"
	}
	m.auditEvents.WithLabelValues(class).Inc()
}

// EventDropped implements audit.Observer.
func (m *Metrics) EventDropped() { m.auditDropped.Inc() }

// WriteFailed implements audit.Observer.
func (m *Metrics) WriteFailed() { m.auditFailed.Inc() }

// JobRun matches schedule.Observer.
func (m *Metrics) JobRun(name string, took time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jobRuns.WithLabelValues(name, result).Inc()
	m.jobDuration.WithLabelValues(name).Observe(took.Seconds())
}

// Middleware records request latency labelled by the mux route template, so path parameters
// do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpDuration.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

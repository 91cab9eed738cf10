// ABOUTME: Prometheus instrumentation for the sign-in gateway
// ABOUTME: Counters for logins, challenges and rate limiting plus HTTP middleware and a state collector

package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/siwx-gateway/internal/login"
)

const namespace = "siwx"

// StatsFunc reports the current login service sizes.
type StatsFunc func() login.Stats

// Metrics owns a private registry so several gateways can coexist in one process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	challengesIssued prometheus.Counter
	logins           *prometheus.CounterVec
	delegations      *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	auditFailures    prometheus.Counter
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInflight prometheus.Gauge
}

// New creates and registers all collectors. stats may be nil.
func New(stats StatsFunc) (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		challengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_issued_total",
			Help:      "Challenges handed out by prepare.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		delegations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegation_requests_total",
			Help:      "Delegation lookups by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"endpoint"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Login audit records that could not be written.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		requestsInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "HTTP requests currently being served.",
		}),
	}

	collectors := []prometheus.Collector{
		m.challengesIssued,
		m.logins,
		m.delegations,
		m.rateLimited,
		m.auditFailures,
		m.requestsTotal,
		m.requestDuration,
		m.requestsInflight,
	}
	if stats != nil {
		collectors = append(collectors, newStateCollector(stats))
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ChallengeIssued() {
	if m == nil {
		return
	}
	m.challengesIssued.Inc()
}

// Login counts a login attempt. outcome is "success" or an error code.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Delegation counts a delegation lookup.
func (m *Metrics) Delegation(outcome string) {
	if m == nil {
		return
	}
	m.delegations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// Middleware records request count, latency and inflight gauge.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		path := normalizePath(r.URL.Path)

		m.requestsInflight.Inc()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			m.requestsInflight.Dec()
			m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

var hexSegmentRE = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)

// normalizePath collapses long hex segments so label cardinality stays bounded.
func normalizePath(p string) string {
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if hexSegmentRE.MatchString(seg) {
			seg = ":param"
		}
		out = append(out, seg)
	}
	return "/" + strings.Join(out, "/")
}

// stateCollector reads service sizes at scrape time.
type stateCollector struct {
	stats       StatsFunc
	pendingDesc *prometheus.Desc
	entriesDesc *prometheus.Desc
}

func newStateCollector(stats StatsFunc) *stateCollector {
	return &stateCollector{
		stats:       stats,
		pendingDesc: prometheus.NewDesc(namespace+"_pending_challenges", "Challenges waiting for a signature.", nil, nil),
		entriesDesc: prometheus.NewDesc(namespace+"_signature_map_entries", "Delegations committed in the signature map.", nil, nil),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pendingDesc
	ch <- c.entriesDesc
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.pendingDesc, prometheus.GaugeValue, float64(s.PendingChallenges))
	ch <- prometheus.MustNewConstMetric(c.entriesDesc, prometheus.GaugeValue, float64(s.Delegations))
}

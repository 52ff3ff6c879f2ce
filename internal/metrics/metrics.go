// Package metrics exposes Prometheus metrics for the command server and the
// instruction engine.
//
// Metrics collected:
//   - commandd_requests_total: requests by outcome
//   - commandd_request_duration_seconds: time from arrival to response
//   - commandd_instructions_total: executed instructions by outcome
//   - commandd_instruction_duration_seconds: handler time by instruction name
//   - commandd_queue_depth: instructions waiting in the engine queue
//   - commandd_server_up: 1 while the command server is running
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/radio-control/commandd/internal/engine"
	"github.com/radio-control/commandd/internal/server"
)

// Config configures the collectors.
type Config struct {
	Namespace string
	Buckets   []float64

	// Registry defaults to a fresh registry with Go and process collectors.
	Registry *prometheus.Registry
}

// Option configures Metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithRegistry sets the registry metrics are registered with.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) { c.Registry = registry }
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) { c.Buckets = buckets }
}

// Metrics records server and engine activity.
type Metrics struct {
	registry *prometheus.Registry
	factory  promauto.Factory
	ns       string

	requests            *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	instructions        *prometheus.CounterVec
	instructionDuration *prometheus.HistogramVec
	serverUp            prometheus.Gauge
}

var (
	_ engine.Observer        = (*Metrics)(nil)
	_ server.RequestObserver = (*Metrics)(nil)
)

// New registers every collector.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "commandd",
		Buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(cfg.Registry)
	return &Metrics{
		registry: cfg.Registry,
		factory:  factory,
		ns:       cfg.Namespace,

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "requests_total",
			Help:      "Command requests by outcome",
		}, []string{"outcome"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from request arrival to response",
			Buckets:   cfg.Buckets,
		}, []string{"outcome"}),

		instructions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "instructions_total",
			Help:      "Executed instructions by outcome",
		}, []string{"outcome"}),

		instructionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "instruction_duration_seconds",
			Help:      "Handler execution time by instruction name",
			Buckets:   cfg.Buckets,
		}, []string{"instruction"}),

		serverUp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "server_up",
			Help:      "1 while the command server is running",
		}),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackQueue exposes the engine queue depth, sampled at scrape time.
func (m *Metrics) TrackQueue(stats func() engine.Stats) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.ns,
		Name:      "queue_depth",
		Help:      "Instructions waiting in the engine queue",
	}, func() float64 {
		return float64(stats().Queued)
	})
}

// RequestDone implements server.RequestObserver.
func (m *Metrics) RequestDone(r server.RequestResult) {
	m.requests.WithLabelValues(r.Outcome).Inc()
	m.requestDuration.WithLabelValues(r.Outcome).Observe(r.Duration.Seconds())
}

// InstructionDone implements engine.Observer. Unknown names are not used as
// a label value, to keep label cardinality bounded by registered handlers.
func (m *Metrics) InstructionDone(r engine.Result) {
	m.instructions.WithLabelValues(string(r.Outcome)).Inc()
	if r.Outcome != engine.OutcomeUnknown {
		m.instructionDuration.WithLabelValues(r.Name).Observe(r.Duration.Seconds())
	}
}

// SetServerUp records whether the command server is running.
func (m *Metrics) SetServerUp(up bool) {
	if up {
		m.serverUp.Set(1)
		return
	}
	m.serverUp.Set(0)
}

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for configuration runs. A Metrics
// built from a disabled config records nothing. It implements
// configspace.Observer.
type Metrics struct {
	config MetricsConfig

	// Configuration space metrics
	samples     prometheus.Counter
	rejections  *prometheus.CounterVec
	exhaustions *prometheus.CounterVec

	// Evaluation metrics
	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec

	// Search metrics
	incumbentCost  prometheus.Gauge
	activeSearches prometheus.Gauge
	vetoes         prometheus.Counter

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.RuntimeBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		samples: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_total",
				Help:      "Total number of configurations drawn from the space",
			},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Total number of forbidden draws discarded",
			},
			[]string{"operation"},
		),
		exhaustions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exhaustions_total",
				Help:      "Total number of rejection loops that ran out of attempts",
			},
			[]string{"operation"},
		),

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of solver runs by result status",
			},
			[]string{"status"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Measured solver runtime in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		incumbentCost: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "incumbent_cost",
				Help:      "PAR10 cost of the current incumbent configuration",
			},
		),
		activeSearches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_searches",
				Help:      "Current number of running searches",
			},
		),
		vetoes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_vetoes_total",
				Help:      "Total number of proposals rejected by constraint policies",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.samples,
		m.rejections,
		m.exhaustions,
		m.evaluations,
		m.evaluationDuration,
		m.incumbentCost,
		m.activeSearches,
		m.vetoes,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// Registry returns the private registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSample counts a configuration drawn from the space.
func (m *Metrics) RecordSample() {
	if m.samples == nil {
		return
	}
	m.samples.Inc()
}

// ObserveRejection counts a discarded forbidden draw.
func (m *Metrics) ObserveRejection(operation string) {
	if m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(operation).Inc()
}

// ObserveExhaustion counts a rejection loop that gave up.
func (m *Metrics) ObserveExhaustion(operation string) {
	if m.exhaustions == nil {
		return
	}
	m.exhaustions.WithLabelValues(operation).Inc()
}

// RecordEvaluation records one solver run.
func (m *Metrics) RecordEvaluation(status string, runtime time.Duration) {
	if m.evaluations == nil {
		return
	}
	m.evaluations.WithLabelValues(status).Inc()
	m.evaluationDuration.WithLabelValues(status).Observe(runtime.Seconds())
}

// SetIncumbentCost sets the cost of the current incumbent.
func (m *Metrics) SetIncumbentCost(cost float64) {
	if m.incumbentCost == nil {
		return
	}
	m.incumbentCost.Set(cost)
}

// SearchStarted increments the active search gauge.
func (m *Metrics) SearchStarted() {
	if m.activeSearches == nil {
		return
	}
	m.activeSearches.Inc()
}

// SearchFinished decrements the active search gauge.
func (m *Metrics) SearchFinished() {
	if m.activeSearches == nil {
		return
	}
	m.activeSearches.Dec()
}

// RecordVeto counts a proposal rejected by a constraint policy.
func (m *Metrics) RecordVeto() {
	if m.vetoes == nil {
		return
	}
	m.vetoes.Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves metrics on addr (the configured listen address
// when empty) until ctx is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context, addr string) error {
	if !m.config.Enabled {
		return nil
	}
	if addr == "" {
		addr = m.config.ListenAddress
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Str("path", m.config.Path).Msg("Metrics server started")
	return nil
}

package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/pipeline"
)

// Metrics exports stage latency and run outcome counters.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
}

var _ pipeline.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors on a private registry that also carries
// the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formflow_stage_duration_seconds",
				Help:    "Duration of pipeline stages.",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"form", "stage"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formflow_runs_total",
				Help: "Completed extraction runs by outcome.",
			},
			[]string{"form", "status", "error_code"},
		),
	}
	m.registry.MustRegister(
		m.stageDuration,
		m.runs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) StageStarted(ctx context.Context, _ string, _ pipeline.StageName) context.Context {
	return ctx
}

func (m *Metrics) StageFinished(_ context.Context, formID string, stage pipeline.StageName, elapsed time.Duration, _ *domain.Error) {
	m.stageDuration.WithLabelValues(formID, string(stage)).Observe(elapsed.Seconds())
}

func (m *Metrics) RunFinished(_ context.Context, st *pipeline.State, _ time.Duration) {
	res := st.Result()
	m.runs.WithLabelValues(st.FormID, string(res.Status), string(res.ErrorCode)).Inc()
}

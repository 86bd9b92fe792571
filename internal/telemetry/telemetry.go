// Package telemetry owns the Prometheus collectors and the tracer used by the
// report pipeline.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by the engine.
const TracerName = "pulseboard.engine"

// Delivery results.
const (
	DeliveryOK     = "ok"
	DeliveryFailed = "failed"
	DeliverySkip   = "skipped"
)

// Metrics bundles the collectors. The zero value is not usable; use New.
type Metrics struct {
	registry          *prometheus.Registry
	ReportsGenerated  *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	GenerationSeconds prometheus.Histogram
	DueConfigs        prometheus.Gauge
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReportsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseboard_reports_generated_total",
			Help: "Reports generated, by period and final status.",
		}, []string{"period", "status"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseboard_report_deliveries_total",
			Help: "Report delivery attempts, by result.",
		}, []string{"result"}),
		GenerationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulseboard_report_generation_seconds",
			Help:    "Time spent assembling and rendering one report.",
			Buckets: prometheus.DefBuckets,
		}),
		DueConfigs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulseboard_scheduler_due_configs",
			Help: "Report configs found due by the last trigger run.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ReportsGenerated,
		m.Deliveries,
		m.GenerationSeconds,
		m.DueConfigs,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveReport records one finished generation.
func (m *Metrics) ObserveReport(period, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.ReportsGenerated.WithLabelValues(period, status).Inc()
	m.GenerationSeconds.Observe(took.Seconds())
}

// ObserveDelivery records one delivery outcome.
func (m *Metrics) ObserveDelivery(result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result).Inc()
}

// SetDue records how many configs a trigger run found due.
func (m *Metrics) SetDue(n int) {
	if m == nil {
		return
	}
	m.DueConfigs.Set(float64(n))
}

// StartSpan opens an internal span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Package telemetry exports cycle metrics and traces over OpenTelemetry.
package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"vpn-sentinel/pkg/model"
	"vpn-sentinel/pkg/version"
)

const meterName = "vpn-sentinel"

// Config selects the exporters.
type Config struct {
	Metrics string // prometheus|stdout|otlp|none
	Traces  string // stdout|otlp|none
	// Writer receives stdout exporter output.
	// Default: os.Stdout
	Writer io.Writer
}

// Telemetry owns the meter and tracer providers.
type Telemetry struct {
	mp       *sdkmetric.MeterProvider
	tp       *sdktrace.TracerProvider
	registry *promclient.Registry

	cycles   metric.Int64Counter
	probes   metric.Int64Counter
	repairs  metric.Int64Counter
	duration metric.Float64Histogram
	alerts   metric.Int64Counter
}

// New builds the providers and installs the tracer provider globally so the
// engine's spans are exported.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	res := resource.NewSchemaless(
		semconv.ServiceName("vpn-sentinel"),
		semconv.ServiceVersion(version.Build),
	)

	t := &Telemetry{}
	if cfg.Metrics == "prometheus" {
		t.registry = promclient.NewRegistry()
	}
	reader, err := newMetricReader(ctx, cfg.Metrics, cfg.Writer, t.registry)
	if err != nil {
		return nil, err
	}
	t.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))

	spans, err := newSpanExporter(ctx, cfg.Traces, cfg.Writer)
	if err != nil {
		_ = t.mp.Shutdown(ctx)
		return nil, err
	}
	if spans != nil {
		t.tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(spans), sdktrace.WithResource(res))
		otel.SetTracerProvider(t.tp)
	}

	if err := t.instruments(t.mp.Meter(meterName)); err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}
	return t, nil
}

func (t *Telemetry) instruments(m metric.Meter) error {
	var err error
	if t.cycles, err = m.Int64Counter("sentinel.cycles",
		metric.WithDescription("Completed check cycles by final status"),
		metric.WithUnit("{cycle}")); err != nil {
		return err
	}
	if t.probes, err = m.Int64Counter("sentinel.probe.results",
		metric.WithDescription("Probe results by probe and status"),
		metric.WithUnit("{result}")); err != nil {
		return err
	}
	if t.repairs, err = m.Int64Counter("sentinel.repairs",
		metric.WithDescription("Repair attempts by probe and outcome"),
		metric.WithUnit("{repair}")); err != nil {
		return err
	}
	if t.alerts, err = m.Int64Counter("sentinel.alerts",
		metric.WithDescription("Alert records by severity"),
		metric.WithUnit("{record}")); err != nil {
		return err
	}
	t.duration, err = m.Float64Histogram("sentinel.cycle.duration_ms",
		metric.WithDescription("Cycle duration in milliseconds"),
		metric.WithUnit("ms"))
	return err
}

// RecordCycle records a finished cycle. It matches the scheduler hook signature.
func (t *Telemetry) RecordCycle(ctx context.Context, s model.RunSummary) {
	t.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(s.Status))))
	for _, r := range s.Results {
		t.probes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("probe", r.Probe),
			attribute.String("status", string(r.Status)),
		))
	}
	for _, rep := range s.Repairs {
		outcome := "converged"
		switch {
		case rep.Kind == "persist":
			outcome = "persist_failed"
		case !rep.Converged:
			outcome = "failed"
		}
		t.repairs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("probe", rep.Probe),
			attribute.String("outcome", outcome),
		))
	}
	t.duration.Record(ctx, float64(s.Duration().Milliseconds()))
}

// RecordAlert counts an alert record.
func (t *Telemetry) RecordAlert(ctx context.Context, a model.AlertRecord) {
	t.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", string(a.Severity))))
}

// Handler serves the Prometheus registry, or nil when the prometheus
// exporter is not selected.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

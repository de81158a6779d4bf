// Package metrics exposes loan origination metrics through OpenTelemetry with a Prometheus exporter.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/mutualia/mutualia-backend"

// Init creates a meter provider backed by the Prometheus exporter.
// The handler serves the default Prometheus registry for /metrics.
func Init() (*sdkmetric.MeterProvider, http.Handler, error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	return provider, promhttp.Handler(), nil
}

// Recorder records origination metrics. A nil Recorder records nothing.
type Recorder struct {
	plansBuilt   metric.Int64Counter
	importRows   metric.Int64Counter
	installments metric.Int64Histogram
}

// NewRecorder registers the instruments on provider's meter
func NewRecorder(provider metric.MeterProvider) (*Recorder, error) {
	meter := provider.Meter(meterName)

	plansBuilt, err := meter.Int64Counter("loan_plans_built",
		metric.WithDescription("Installment plans built, by origination source"))
	if err != nil {
		return nil, err
	}
	importRows, err := meter.Int64Counter("loan_import_rows",
		metric.WithDescription("Bulk import rows processed, by outcome"))
	if err != nil {
		return nil, err
	}
	installments, err := meter.Int64Histogram("loan_plan_installments",
		metric.WithDescription("Installment count of built plans"),
		metric.WithExplicitBucketBoundaries(1, 3, 6, 12, 18, 24, 36, 48, 60, 120))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		plansBuilt:   plansBuilt,
		importRows:   importRows,
		installments: installments,
	}, nil
}

// PlanBuilt records a built plan. source is manual, import or preview.
func (r *Recorder) PlanBuilt(ctx context.Context, source string, installmentCount int) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	r.plansBuilt.Add(ctx, 1, attrs)
	r.installments.Record(ctx, int64(installmentCount), attrs)
}

// ImportRow records the outcome of one bulk import row
func (r *Recorder) ImportRow(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.importRows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

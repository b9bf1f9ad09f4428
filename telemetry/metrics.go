package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/ledger"
)

const meterName = "github.com/blockberries/harvest"

// Metrics records ledger operations as OpenTelemetry instruments:
//
//	harvest.operations              counter, by op and outcome kind
//	harvest.payout.amount           histogram of disbursed amounts
//	harvest.verification.score      histogram of eligibility scores
type Metrics struct {
	operations metric.Int64Counter
	payouts    metric.Int64Histogram
	scores     metric.Int64Histogram
}

var _ ledger.Recorder = (*Metrics)(nil)

// NewMetrics creates the instruments on provider. A nil provider uses
// the global one.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	var m Metrics
	var err, e error
	m.operations, e = meter.Int64Counter("harvest.operations",
		metric.WithDescription("Ledger operations by outcome kind"))
	err = errors.Join(err, e)
	m.payouts, e = meter.Int64Histogram("harvest.payout.amount",
		metric.WithDescription("Disbursed payout amounts"))
	err = errors.Join(err, e)
	m.scores, e = meter.Int64Histogram("harvest.verification.score",
		metric.WithDescription("Eligibility scores of verifications"),
		metric.WithExplicitBucketBoundaries(0, 20, 40, 60, 70, 80, 100))
	err = errors.Join(err, e)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create instruments: %w", err)
	}
	return &m, nil
}

func (m *Metrics) RecordOperation(ctx context.Context, op string, kind harvest.Kind) {
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("kind", kind.String()),
	))
}

func (m *Metrics) RecordPayout(ctx context.Context, amount uint64) {
	m.payouts.Record(ctx, int64(min(amount, 1<<63-1)))
}

func (m *Metrics) RecordScore(ctx context.Context, score uint8) {
	m.scores.Record(ctx, int64(score))
}

// NewOTLPMeterProvider exports metrics over OTLP/gRPC to endpoint every
// interval. The caller must Shutdown the provider.
func NewOTLPMeterProvider(ctx context.Context, endpoint string, interval time.Duration, insecure bool) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
	}
	res := resource.NewSchemaless(attribute.String("service.name", "harvestd"))
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	), nil
}

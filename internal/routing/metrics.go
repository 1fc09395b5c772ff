package routing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/motis-project/prima-dispatch/internal/routing"

// Metrics records routing-provider calls and duration-cache outcomes. A nil
// *Metrics is a no-op so the service can record unconditionally.
type Metrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// NewMetrics registers the routing instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	var err error
	if m.requestDuration, err = meter.Float64Histogram(
		"routing.request.duration",
		metric.WithDescription("Duration of routing provider requests in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.requestTotal, err = meter.Int64Counter(
		"routing.request.total",
		metric.WithDescription("Total number of routing provider requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.cacheHits, err = meter.Int64Counter(
		"routing.cache.hit",
		metric.WithDescription("Durations answered from the cache"),
		metric.WithUnit("{duration}"),
	); err != nil {
		return nil, err
	}
	if m.cacheMisses, err = meter.Int64Counter(
		"routing.cache.miss",
		metric.WithDescription("Durations fetched from the provider"),
		metric.WithUnit("{duration}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordRequest(ctx context.Context, provider string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("provider.name", provider)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}
	opts := metric.WithAttributes(attrs...)
	m.requestDuration.Record(ctx, elapsed.Seconds(), opts)
	m.requestTotal.Add(ctx, 1, opts)
}

func (m *Metrics) recordCache(ctx context.Context, provider string, hits, misses int) {
	if m == nil {
		return
	}
	opts := metric.WithAttributes(attribute.String("provider.name", provider))
	if hits > 0 {
		m.cacheHits.Add(ctx, int64(hits), opts)
	}
	if misses > 0 {
		m.cacheMisses.Add(ctx, int64(misses), opts)
	}
}

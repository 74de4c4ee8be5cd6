package middleware

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	syncengine "github.com/eventualhq/syncengine"
	"github.com/eventualhq/syncengine/pkg/coordinator"
	"github.com/eventualhq/syncengine/pkg/dispatch"
	"github.com/eventualhq/syncengine/pkg/stats"
	"github.com/eventualhq/syncengine/pkg/subscription"
	"github.com/eventualhq/syncengine/pkg/transport"
)

// OTelMetricsMiddleware emits OpenTelemetry metrics for service methods.
type OTelMetricsMiddleware struct {
	next  syncengine.Service
	meter metric.Meter

	// instruments
	calls     metric.Int64Counter
	durations metric.Float64Histogram
}

// NewOTelMetricsMiddleware constructs a metrics middleware using the provided meter.
func NewOTelMetricsMiddleware(next syncengine.Service, meter metric.Meter) (syncengine.Service, error) {
	calls, err := meter.Int64Counter("syncengine.calls")
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	durations, err := meter.Float64Histogram("syncengine.duration.ms")
	if err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}

	return &OTelMetricsMiddleware{next: next, meter: meter, calls: calls, durations: durations}, nil
}

// Get implements Service.Get with metrics.
func (mw *OTelMetricsMiddleware) Get(ctx context.Context, key string, opts ...coordinator.ReadOption) (any, error) {
	start := time.Now()
	v, err := mw.next.Get(ctx, key, opts...)
	mw.rec(ctx, "Get", start, attribute.Int("key.len", len(key)), attribute.Bool("hit", err == nil))

	return v, err
}

// Set implements Service.Set with metrics.
func (mw *OTelMetricsMiddleware) Set(ctx context.Context, key string, value any, opts ...coordinator.WriteOption) error {
	start := time.Now()
	err := mw.next.Set(ctx, key, value, opts...)
	mw.rec(ctx, "Set", start, attribute.Int("key.len", len(key)))

	return err
}

// GetOrSet implements Service.GetOrSet with metrics.
func (mw *OTelMetricsMiddleware) GetOrSet(
	ctx context.Context,
	key string,
	value any,
	opts ...coordinator.WriteOption,
) (any, bool, error) {
	start := time.Now()
	v, cached, err := mw.next.GetOrSet(ctx, key, value, opts...)
	mw.rec(ctx, "GetOrSet", start, attribute.Int("key.len", len(key)), attribute.Bool("cached", cached))

	return v, cached, err
}

// GetMultiple implements Service.GetMultiple with metrics.
func (mw *OTelMetricsMiddleware) GetMultiple(ctx context.Context, keys ...string) (map[string]any, map[string]error) {
	start := time.Now()
	res, failed := mw.next.GetMultiple(ctx, keys...)
	mw.rec(ctx, "GetMultiple", start,
		attribute.Int("keys.count", len(keys)),
		attribute.Int("result.count", len(res)),
		attribute.Int("failed.count", len(failed)))

	return res, failed
}

// Invalidate implements Service.Invalidate with metrics.
func (mw *OTelMetricsMiddleware) Invalidate(ctx context.Context, pattern string) error {
	start := time.Now()
	err := mw.next.Invalidate(ctx, pattern)
	mw.rec(ctx, "Invalidate", start)

	return err
}

// InvalidateAll implements Service.InvalidateAll with metrics.
func (mw *OTelMetricsMiddleware) InvalidateAll(ctx context.Context) error {
	start := time.Now()
	err := mw.next.InvalidateAll(ctx)
	mw.rec(ctx, "InvalidateAll", start)

	return err
}

// Remove implements Service.Remove with metrics.
func (mw *OTelMetricsMiddleware) Remove(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := mw.next.Remove(ctx, keys...)
	mw.rec(ctx, "Remove", start, attribute.Int("keys.count", len(keys)))

	return err
}

// Subscribe delegates subscription registration.
func (mw *OTelMetricsMiddleware) Subscribe(channel string, handler subscription.Handler) func() {
	return mw.next.Subscribe(channel, handler)
}

// On delegates event registration.
func (mw *OTelMetricsMiddleware) On(eventType string, handler dispatch.Handler) func() {
	return mw.next.On(eventType, handler)
}

// ConnectionState returns the transport state.
func (mw *OTelMetricsMiddleware) ConnectionState() transport.State { return mw.next.ConnectionState() }

// Counts returns the per-tier entry counts.
func (mw *OTelMetricsMiddleware) Counts(ctx context.Context) map[string]int {
	return mw.next.Counts(ctx)
}

// GetStats returns stats.
func (mw *OTelMetricsMiddleware) GetStats() stats.Stats { return mw.next.GetStats() }

// Stop stops the underlying service.
func (mw *OTelMetricsMiddleware) Stop(ctx context.Context) error { return mw.next.Stop(ctx) }

// rec records call count and duration with attributes.
func (mw *OTelMetricsMiddleware) rec(ctx context.Context, method string, start time.Time, attrs ...attribute.KeyValue) {
	base := []attribute.KeyValue{attribute.String("method", method)}
	if len(attrs) > 0 {
		base = append(base, attrs...)
	}

	mw.calls.Add(ctx, 1, metric.WithAttributes(base...))
	mw.durations.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(base...))
}

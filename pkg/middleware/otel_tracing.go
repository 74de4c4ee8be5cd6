package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	syncengine "github.com/eventualhq/syncengine"
	"github.com/eventualhq/syncengine/pkg/coordinator"
	"github.com/eventualhq/syncengine/pkg/dispatch"
	"github.com/eventualhq/syncengine/pkg/stats"
	"github.com/eventualhq/syncengine/pkg/subscription"
	"github.com/eventualhq/syncengine/pkg/transport"
)

// OTelTracingMiddleware wraps syncengine.Service methods with OpenTelemetry spans.
type OTelTracingMiddleware struct {
	next   syncengine.Service
	tracer trace.Tracer
	// static attributes applied to all spans
	commonAttrs []attribute.KeyValue
}

// OTelTracingOption allows configuring the tracing middleware.
type OTelTracingOption func(*OTelTracingMiddleware)

// WithCommonAttributes sets attributes applied to all spans.
func WithCommonAttributes(attributes ...attribute.KeyValue) OTelTracingOption {
	return func(m *OTelTracingMiddleware) { m.commonAttrs = append(m.commonAttrs, attributes...) }
}

// NewOTelTracingMiddleware creates a tracing middleware.
func NewOTelTracingMiddleware(next syncengine.Service, tracer trace.Tracer, opts ...OTelTracingOption) syncengine.Service {
	mw := &OTelTracingMiddleware{next: next, tracer: tracer}
	for _, o := range opts {
		o(mw)
	}

	return mw
}

// Get implements Service.Get with tracing.
func (mw OTelTracingMiddleware) Get(ctx context.Context, key string, opts ...coordinator.ReadOption) (any, error) {
	ctx, span := mw.startSpan(ctx, "syncengine.Get", attribute.Int("key.len", len(key)))
	defer span.End()

	v, err := mw.next.Get(ctx, key, opts...)
	span.SetAttributes(attribute.Bool("hit", err == nil))

	return v, err
}

// Set implements Service.Set with tracing.
func (mw OTelTracingMiddleware) Set(ctx context.Context, key string, value any, opts ...coordinator.WriteOption) error {
	ctx, span := mw.startSpan(ctx, "syncengine.Set", attribute.Int("key.len", len(key)))
	defer span.End()

	err := mw.next.Set(ctx, key, value, opts...)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// GetOrSet implements Service.GetOrSet with tracing.
func (mw OTelTracingMiddleware) GetOrSet(
	ctx context.Context,
	key string,
	value any,
	opts ...coordinator.WriteOption,
) (any, bool, error) {
	ctx, span := mw.startSpan(ctx, "syncengine.GetOrSet", attribute.Int("key.len", len(key)))
	defer span.End()

	v, cached, err := mw.next.GetOrSet(ctx, key, value, opts...)
	span.SetAttributes(attribute.Bool("cached", cached))

	if err != nil {
		span.RecordError(err)
	}

	return v, cached, err
}

// GetMultiple implements Service.GetMultiple with tracing.
func (mw OTelTracingMiddleware) GetMultiple(ctx context.Context, keys ...string) (map[string]any, map[string]error) {
	ctx, span := mw.startSpan(ctx, "syncengine.GetMultiple", attribute.Int("keys.count", len(keys)))
	defer span.End()

	res, failed := mw.next.GetMultiple(ctx, keys...)
	span.SetAttributes(attribute.Int("result.count", len(res)), attribute.Int("failed.count", len(failed)))

	return res, failed
}

// Invalidate implements Service.Invalidate with tracing.
func (mw OTelTracingMiddleware) Invalidate(ctx context.Context, pattern string) error {
	ctx, span := mw.startSpan(ctx, "syncengine.Invalidate")
	defer span.End()

	err := mw.next.Invalidate(ctx, pattern)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// InvalidateAll implements Service.InvalidateAll with tracing.
func (mw OTelTracingMiddleware) InvalidateAll(ctx context.Context) error {
	ctx, span := mw.startSpan(ctx, "syncengine.InvalidateAll")
	defer span.End()

	err := mw.next.InvalidateAll(ctx)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// Remove implements Service.Remove with tracing.
func (mw OTelTracingMiddleware) Remove(ctx context.Context, keys ...string) error {
	ctx, span := mw.startSpan(ctx, "syncengine.Remove", attribute.Int("keys.count", len(keys)))
	defer span.End()

	err := mw.next.Remove(ctx, keys...)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// Subscribe delegates subscription registration.
func (mw OTelTracingMiddleware) Subscribe(channel string, handler subscription.Handler) func() {
	return mw.next.Subscribe(channel, handler)
}

// On delegates event registration.
func (mw OTelTracingMiddleware) On(eventType string, handler dispatch.Handler) func() {
	return mw.next.On(eventType, handler)
}

// ConnectionState returns the transport state.
func (mw OTelTracingMiddleware) ConnectionState() transport.State { return mw.next.ConnectionState() }

// Counts returns the per-tier entry counts.
func (mw OTelTracingMiddleware) Counts(ctx context.Context) map[string]int {
	return mw.next.Counts(ctx)
}

// GetStats returns stats.
func (mw OTelTracingMiddleware) GetStats() stats.Stats { return mw.next.GetStats() }

// Stop stops the service with a span.
func (mw OTelTracingMiddleware) Stop(ctx context.Context) error {
	_, span := mw.startSpan(ctx, "syncengine.Stop")
	defer span.End()

	return mw.next.Stop(ctx)
}

// startSpan starts a span with common and provided attributes.
func (mw OTelTracingMiddleware) startSpan(
	ctx context.Context,
	name string,
	attributes ...attribute.KeyValue,
) (context.Context, trace.Span) {
	ctx, span := mw.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	if len(mw.commonAttrs) > 0 {
		span.SetAttributes(mw.commonAttrs...)
	}

	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}

	return ctx, span
}

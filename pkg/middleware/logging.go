// Package middleware contains service middlewares for syncengine.
package middleware

import (
	"context"
	"time"

	syncengine "github.com/eventualhq/syncengine"
	"github.com/eventualhq/syncengine/pkg/coordinator"
	"github.com/eventualhq/syncengine/pkg/dispatch"
	"github.com/eventualhq/syncengine/pkg/stats"
	"github.com/eventualhq/syncengine/pkg/subscription"
	"github.com/eventualhq/syncengine/pkg/transport"
)

// Logger describes a logging interface allowing to implement different external, or custom logger.
// Tested with logrus, and Uber's Zap (high-performance), but should work with any other logger that matches the interface.
type Logger interface {
	Infof(format string, v ...any)
	Errorf(format string, v ...any)
}

// LoggingMiddleware logs every service call and the time it took.
type LoggingMiddleware struct {
	next   syncengine.Service
	logger Logger
}

// NewLoggingMiddleware returns a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) syncengine.Middleware {
	return func(next syncengine.Service) syncengine.Service {
		return &LoggingMiddleware{next: next, logger: logger}
	}
}

// Get logs the call and delegates.
func (mw *LoggingMiddleware) Get(ctx context.Context, key string, opts ...coordinator.ReadOption) (any, error) {
	defer func(begin time.Time) {
		mw.logger.Infof("method Get took: %s", time.Since(begin))
	}(time.Now())

	value, err := mw.next.Get(ctx, key, opts...)
	if err != nil {
		mw.logger.Errorf("Get %q: %v", key, err)
	}

	return value, err
}

// Set logs the call and delegates.
func (mw *LoggingMiddleware) Set(ctx context.Context, key string, value any, opts ...coordinator.WriteOption) error {
	defer func(begin time.Time) {
		mw.logger.Infof("method Set took: %s", time.Since(begin))
	}(time.Now())

	err := mw.next.Set(ctx, key, value, opts...)
	if err != nil {
		mw.logger.Errorf("Set %q: %v", key, err)
	}

	return err
}

// GetOrSet logs the call and delegates.
func (mw *LoggingMiddleware) GetOrSet(
	ctx context.Context,
	key string,
	value any,
	opts ...coordinator.WriteOption,
) (any, bool, error) {
	defer func(begin time.Time) {
		mw.logger.Infof("method GetOrSet took: %s", time.Since(begin))
	}(time.Now())

	return mw.next.GetOrSet(ctx, key, value, opts...)
}

// GetMultiple logs the call and delegates.
func (mw *LoggingMiddleware) GetMultiple(ctx context.Context, keys ...string) (map[string]any, map[string]error) {
	defer func(begin time.Time) {
		mw.logger.Infof("method GetMultiple took: %s", time.Since(begin))
	}(time.Now())

	return mw.next.GetMultiple(ctx, keys...)
}

// Invalidate logs the call and delegates.
func (mw *LoggingMiddleware) Invalidate(ctx context.Context, pattern string) error {
	defer func(begin time.Time) {
		mw.logger.Infof("method Invalidate took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Infof("Invalidate method called with pattern: %s", pattern)

	return mw.next.Invalidate(ctx, pattern)
}

// InvalidateAll logs the call and delegates.
func (mw *LoggingMiddleware) InvalidateAll(ctx context.Context) error {
	defer func(begin time.Time) {
		mw.logger.Infof("method InvalidateAll took: %s", time.Since(begin))
	}(time.Now())

	return mw.next.InvalidateAll(ctx)
}

// Remove logs the call and delegates.
func (mw *LoggingMiddleware) Remove(ctx context.Context, keys ...string) error {
	defer func(begin time.Time) {
		mw.logger.Infof("method Remove took: %s", time.Since(begin))
	}(time.Now())

	return mw.next.Remove(ctx, keys...)
}

// Subscribe logs the subscription and delegates.
func (mw *LoggingMiddleware) Subscribe(channel string, handler subscription.Handler) func() {
	mw.logger.Infof("Subscribe method called with channel: %s", channel)

	return mw.next.Subscribe(channel, handler)
}

// On delegates event registration.
func (mw *LoggingMiddleware) On(eventType string, handler dispatch.Handler) func() {
	return mw.next.On(eventType, handler)
}

// ConnectionState delegates.
func (mw *LoggingMiddleware) ConnectionState() transport.State {
	return mw.next.ConnectionState()
}

// Counts delegates.
func (mw *LoggingMiddleware) Counts(ctx context.Context) map[string]int {
	return mw.next.Counts(ctx)
}

// GetStats delegates.
func (mw *LoggingMiddleware) GetStats() stats.Stats {
	return mw.next.GetStats()
}

// Stop logs the shutdown and delegates.
func (mw *LoggingMiddleware) Stop(ctx context.Context) error {
	mw.logger.Infof("Stop method called")

	return mw.next.Stop(ctx)
}

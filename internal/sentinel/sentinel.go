// Package sentinel provides standardized error definitions for the syncengine system.
// This package centralizes all error types used across the engine components,
// ensuring consistent error handling and messaging throughout the application.
//
// The errors defined here cover various scenarios including:
// - Invalid configuration parameters (tier capacity, TTL, intervals)
// - Cache operation failures (key not found, expired keys)
// - Transport failures (not connected, connect timeout, protocol violations)
// - Durable storage failures (unavailable store, failed transactions)
// - Runtime operation errors (timeouts, cancellations)
//
// All errors are created using the ewrap package to provide enhanced error
// wrapping and context capabilities.
package sentinel

import (
	"github.com/hyp3rd/ewrap"
)

var (
	// ErrInvalidKey is returned when an invalid key is used to access an entry in a tier.
	// An invalid key is a key that is either empty or consists only of whitespace characters.
	ErrInvalidKey = ewrap.New("invalid key")

	// ErrKeyNotFound is returned when a key is not found in any enabled tier.
	// The caller is expected to fetch from the network and write back via Set.
	ErrKeyNotFound = ewrap.New("key not found")

	// ErrNilValue is returned when a nil value is attempted to be stored.
	ErrNilValue = ewrap.New("nil value")

	// ErrNilClient is returned when a nil client is passed to a store or transport.
	ErrNilClient = ewrap.New("nil client")

	// ErrInvalidCapacity is returned when a tier is configured with a capacity below one.
	ErrInvalidCapacity = ewrap.New("capacity must be at least one entry")

	// ErrInvalidTTL is returned when a tier is configured with a non-positive TTL.
	ErrInvalidTTL = ewrap.New("ttl must be positive")

	// ErrInvalidInterval is returned when a poll or refresh interval is non-positive.
	ErrInvalidInterval = ewrap.New("interval must be positive")

	// ErrParamCannotBeEmpty is returned when a parameter cannot be empty.
	ErrParamCannotBeEmpty = ewrap.New("param cannot be empty")

	// ErrSerializerNotFound is returned when a serializer is not found.
	ErrSerializerNotFound = ewrap.New("serializer not found")

	// ErrInvalidSize is returned when an entry size cannot be computed.
	ErrInvalidSize = ewrap.New("invalid size")

	// ErrStorageUnavailable is returned when the durable tier fails to open or a
	// transaction fails. The coordinator degrades to the in-memory tiers for the
	// remainder of the session; the error is never fatal.
	ErrStorageUnavailable = ewrap.New("durable storage unavailable")

	// ErrNotConnected is returned when an outbound message is attempted while the
	// transport is not in the connected state.
	ErrNotConnected = ewrap.New("transport not connected")

	// ErrConnectTimeout is returned when a connect attempt does not open within the
	// configured window. It routes into the reconnecting transition.
	ErrConnectTimeout = ewrap.New("connect attempt timed out")

	// ErrProtocolViolation is returned when a malformed or unknown inbound message is
	// received. The offending message is dropped; the connection is not torn down.
	ErrProtocolViolation = ewrap.New("protocol violation")

	// ErrManagerClosed is returned when an operation is attempted on a stopped
	// transport manager or scheduler.
	ErrManagerClosed = ewrap.New("manager closed")

	// ErrDomainNotFound is returned when a poll or refresh targets an unknown domain.
	ErrDomainNotFound = ewrap.New("domain not found")

	// ErrTimeoutOrCanceled is returned when a timeout or cancellation occurs.
	ErrTimeoutOrCanceled = ewrap.New("the operation timed out or was canceled")

	// ErrMgmtHTTPShutdownTimeout is returned when the management HTTP server fails to shutdown before context deadline.
	ErrMgmtHTTPShutdownTimeout = ewrap.New("management http shutdown timeout")
)

// Package cache defines the data model shared by every tier: the immutable
// Entry, its priority classes, and the per-tier configuration.
package cache

import (
	"bytes"
	"encoding"
	"strings"
	"sync"
	"time"

	"github.com/ugorji/go/codec"

	"github.com/eventualhq/syncengine/internal/sentinel"
)

// Priority classifies an entry for observability purposes. High-priority
// entries typically back the visible page; low-priority entries are
// speculative prefetches.
type Priority uint8

// Priority levels, ordered.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// TierConfig fixes a tier's TTL and capacity at construction time.
type TierConfig struct {
	// TTL is the age after which an entry in this tier is treated as a miss.
	TTL time.Duration
	// MaxEntries bounds the number of entries held by the tier.
	MaxEntries int
}

// Valid returns an error if the configuration violates the tier invariants
// (MaxEntries >= 1, TTL > 0).
func (c TierConfig) Valid() error {
	if c.MaxEntries < 1 {
		return sentinel.ErrInvalidCapacity
	}

	if c.TTL <= 0 {
		return sentinel.ErrInvalidTTL
	}

	return nil
}

// Entry is a single cached value. An Entry is owned exclusively by the tier
// that holds it and is immutable once stored: updates replace the entry, they
// never mutate its fields in place.
type Entry struct {
	Key      string    // key of the entry
	Value    any       // cached value
	StoredAt time.Time // time the entry was written to its tier
	Priority Priority  // priority class
	Size     int64     // serialized size in bytes, set by SetSize
}

// Valid returns an error if the entry cannot be stored, nil otherwise.
func (e *Entry) Valid() error {
	if strings.TrimSpace(e.Key) == "" {
		return sentinel.ErrInvalidKey
	}

	if e.Value == nil {
		return sentinel.ErrNilValue
	}

	return nil
}

// Expired reports whether the entry has outlived the given TTL at instant now.
func (e *Entry) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.StoredAt) > ttl
}

// Sizer allows custom values to report their encoded size without serialization.
type Sizer interface{ SizeBytes() int }

// Pooled encoder state for SetSize. Package-scoped to amortize allocations.
//
//nolint:gochecknoglobals
var cborHandle = &codec.CborHandle{}

//nolint:gochecknoglobals
var bufPool = sync.Pool{ // *bytes.Buffer
	New: func() any { return new(bytes.Buffer) },
}

// SetSize computes and sets Size using fast paths for common value types and a
// pooled CBOR encoder as the fallback.
func (e *Entry) SetSize() error {
	switch val := e.Value.(type) {
	case []byte:
		e.Size = int64(len(val))

		return nil

	case string:
		e.Size = int64(len(val))

		return nil

	case encoding.BinaryMarshaler:
		b, err := val.MarshalBinary()
		if err != nil {
			return sentinel.ErrInvalidSize
		}

		e.Size = int64(len(b))

		return nil

	case Sizer:
		e.Size = int64(val.SizeBytes())

		return nil
	}

	bufAny := bufPool.Get()

	buf, ok := bufAny.(*bytes.Buffer)
	if !ok {
		buf = new(bytes.Buffer)
	}

	buf.Reset()

	// Avoid retaining huge buffers in the pool
	const maxKeepCap = 1 << 20 // 1 MiB

	defer func() {
		if buf.Cap() > maxKeepCap {
			return
		}

		buf.Reset()
		bufPool.Put(buf)
	}()

	enc := codec.NewEncoder(buf, cborHandle)

	err := enc.Encode(e.Value)
	if err != nil {
		return sentinel.ErrInvalidSize
	}

	e.Size = int64(buf.Len())

	return nil
}

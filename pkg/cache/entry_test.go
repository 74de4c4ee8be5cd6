package cache

import (
	"testing"
	"time"

	"github.com/longbridgeapp/assert"
)

func TestTierConfig_Valid(t *testing.T) {
	tests := []struct {
		name    string
		config  TierConfig
		wantErr bool
	}{
		{
			name:   "valid config",
			config: TierConfig{MaxEntries: 256, TTL: 5 * time.Minute},
		},
		{
			name:    "zero capacity",
			config:  TierConfig{MaxEntries: 0, TTL: 5 * time.Minute},
			wantErr: true,
		},
		{
			name:    "negative capacity",
			config:  TierConfig{MaxEntries: -1, TTL: 5 * time.Minute},
			wantErr: true,
		},
		{
			name:    "zero ttl",
			config:  TierConfig{MaxEntries: 1, TTL: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Valid()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEntry_Valid(t *testing.T) {
	entry := &Entry{Key: "k", Value: "v"}
	assert.NoError(t, entry.Valid())

	entry = &Entry{Key: "  ", Value: "v"}
	assert.Error(t, entry.Valid())

	entry = &Entry{Key: "k", Value: nil}
	assert.Error(t, entry.Valid())
}

func TestEntry_ExpiredBoundary(t *testing.T) {
	stored := time.Unix(1000, 0)
	entry := &Entry{Key: "k", Value: "v", StoredAt: stored}

	ttl := 5 * time.Second

	assert.False(t, entry.Expired(ttl, stored.Add(5*time.Second)), "exactly at the ttl is still valid")
	assert.True(t, entry.Expired(ttl, stored.Add(5*time.Second+time.Nanosecond)), "past the ttl is expired")
}

type sizedValue struct{}

func (sizedValue) SizeBytes() int { return 42 }

func TestEntry_SetSize(t *testing.T) {
	entry := &Entry{Key: "k", Value: []byte("12345")}
	assert.NoError(t, entry.SetSize())
	assert.Equal(t, int64(5), entry.Size)

	entry = &Entry{Key: "k", Value: "abc"}
	assert.NoError(t, entry.SetSize())
	assert.Equal(t, int64(3), entry.Size)

	entry = &Entry{Key: "k", Value: sizedValue{}}
	assert.NoError(t, entry.SetSize())
	assert.Equal(t, int64(42), entry.Size)

	entry = &Entry{Key: "k", Value: map[string]int{"a": 1}}
	assert.NoError(t, entry.SetSize())
	assert.True(t, entry.Size > 0, "encoded size must be positive")
}

func TestPriority_String(t *testing.T) {
	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "normal", PriorityNormal.String())
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "unknown", Priority(9).String())
}

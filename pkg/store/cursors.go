package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyp3rd/ewrap"

	"github.com/eventualhq/syncengine/internal/sentinel"
)

// RedisCursors persists per-domain poll cursors in redis so polling resumes
// incrementally across restarts instead of refetching whole collections.
type RedisCursors struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCursors creates a cursor store namespaced under the given prefix.
func NewRedisCursors(client *redis.Client, prefix string) (*RedisCursors, error) {
	if client == nil {
		return nil, sentinel.ErrNilClient
	}

	if prefix == "" {
		prefix = "syncengine"
	}

	return &RedisCursors{rdb: client, prefix: prefix}, nil
}

func (c *RedisCursors) cursorKey(domain string) string {
	return c.prefix + ":cursor:" + domain
}

// Load returns the persisted cursor for the domain, or the zero time if no
// cursor has been saved yet.
func (c *RedisCursors) Load(ctx context.Context, domain string) (time.Time, error) {
	val, err := c.rdb.Get(ctx, c.cursorKey(domain)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}

		return time.Time{}, ewrap.Wrap(err, "load cursor")
	}

	cursor, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		// A corrupt cursor is treated as absent; the next poll refetches.
		return time.Time{}, nil
	}

	return cursor, nil
}

// Save persists the cursor for the domain.
func (c *RedisCursors) Save(ctx context.Context, domain string, cursor time.Time) error {
	err := c.rdb.Set(ctx, c.cursorKey(domain), cursor.UTC().Format(time.RFC3339Nano), 0).Err()
	if err != nil {
		return ewrap.Wrap(err, "save cursor")
	}

	return nil
}

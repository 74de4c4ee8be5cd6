package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyp3rd/ewrap"

	"github.com/eventualhq/syncengine/internal/constants"
	"github.com/eventualhq/syncengine/internal/libs/serializer"
	"github.com/eventualhq/syncengine/internal/sentinel"
	"github.com/eventualhq/syncengine/pkg/cache"
)

// Redis is the durable cache tier. Entries survive process restarts and are
// shared across clients of the same origin. Each entry is stored as a hash
// under its key with the serialized entry in the "data" field; a set holds the
// known keys, and one secondary set per domain supports filtered reads.
//
// A key's domain is the prefix before the first ':' ("events:list" belongs to
// the "events" domain).
type Redis struct {
	rdb         *redis.Client          // redis client to interact with the redis server
	keysSetName string                 // name of the set that holds the keys of the entries
	ttl         time.Duration          // durable tier TTL, applied per entry
	Serializer  serializer.ISerializer // serializer used before storing entries
}

// RedisOption configures the Redis tier.
type RedisOption func(*Redis)

// WithRedisClient sets the redis client to use.
func WithRedisClient(client *redis.Client) RedisOption {
	return func(r *Redis) { r.rdb = client }
}

// WithKeysSetName sets the name of the set that holds the keys of the entries.
func WithKeysSetName(keysSetName string) RedisOption {
	return func(r *Redis) { r.keysSetName = keysSetName }
}

// WithTTL sets the durable tier TTL.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithSerializer sets the serializer used to serialize entries before storing
// them. The default is msgpack.
func WithSerializer(ser serializer.ISerializer) RedisOption {
	return func(r *Redis) { r.Serializer = ser }
}

// NewRedis creates a new durable tier with the given options.
func NewRedis(opts ...RedisOption) (*Redis, error) {
	rb := &Redis{}

	for _, opt := range opts {
		opt(rb)
	}

	if rb.rdb == nil {
		return nil, sentinel.ErrNilClient
	}

	if rb.keysSetName == "" {
		rb.keysSetName = constants.DefaultDurableKeysSet
	}

	if rb.ttl <= 0 {
		rb.ttl = constants.DefaultDurableTTL
	}

	if rb.Serializer == nil {
		var err error

		rb.Serializer, err = serializer.New("msgpack")
		if err != nil {
			return nil, err
		}
	}

	return rb, nil
}

// domainOf extracts the domain prefix from a key.
func domainOf(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}

	return key
}

func (r *Redis) domainSetName(domain string) string {
	return r.keysSetName + ":domain:" + domain
}

// Get retrieves the entry with the given key. A missing or aged-out entry is a
// clean miss; an I/O failure is reported so the coordinator can degrade.
func (r *Redis) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	data, err := r.rdb.HGet(ctx, r.entryKey(key), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Aged out: drop the stale index membership.
			r.rdb.SRem(ctx, r.keysSetName, key)

			return nil, false, nil
		}

		return nil, false, ewrap.Wrap(err, "durable get")
	}

	entry := &cache.Entry{}

	err = r.Serializer.Unmarshal(data, entry)
	if err != nil {
		return nil, false, ewrap.Wrap(err, "durable decode")
	}

	return entry, true, nil
}

// Set stores the entry and registers it in the primary and domain key sets.
// The entry expires server-side after the tier TTL.
func (r *Redis) Set(ctx context.Context, entry *cache.Entry) error {
	err := entry.Valid()
	if err != nil {
		return err
	}

	data, err := r.Serializer.Marshal(entry)
	if err != nil {
		return ewrap.Wrap(err, "durable encode")
	}

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.entryKey(entry.Key), "data", data)
	pipe.PExpire(ctx, r.entryKey(entry.Key), r.ttl)
	pipe.SAdd(ctx, r.keysSetName, entry.Key)
	pipe.SAdd(ctx, r.domainSetName(domainOf(entry.Key)), entry.Key)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return ewrap.Wrap(err, "durable set")
	}

	return nil
}

// Remove deletes the entries with the given keys and their index memberships.
func (r *Redis) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	pipe := r.rdb.TxPipeline()

	for _, key := range keys {
		pipe.Del(ctx, r.entryKey(key))
		pipe.SRem(ctx, r.keysSetName, key)
		pipe.SRem(ctx, r.domainSetName(domainOf(key)), key)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return ewrap.Wrap(err, "durable remove")
	}

	return nil
}

// Clear removes every entry registered in the keys set.
func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.rdb.SMembers(ctx, r.keysSetName).Result()
	if err != nil {
		return ewrap.Wrap(err, "durable clear: list keys")
	}

	err = r.Remove(ctx, keys...)
	if err != nil {
		return err
	}

	err = r.rdb.Del(ctx, r.keysSetName).Err()
	if err != nil {
		return ewrap.Wrap(err, "durable clear")
	}

	return nil
}

// Count returns the number of keys registered in the keys set.
func (r *Redis) Count(ctx context.Context) int {
	count, err := r.rdb.SCard(ctx, r.keysSetName).Result()
	if err != nil {
		return 0
	}

	return int(count)
}

// Keys returns a snapshot of the keys registered in the keys set.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.rdb.SMembers(ctx, r.keysSetName).Result()
	if err != nil {
		return nil, ewrap.Wrap(err, "durable keys")
	}

	return keys, nil
}

// KeysByDomain returns the keys registered under the given domain, supporting
// filtered reads against the durable tier.
func (r *Redis) KeysByDomain(ctx context.Context, domain string) ([]string, error) {
	keys, err := r.rdb.SMembers(ctx, r.domainSetName(domain)).Result()
	if err != nil {
		return nil, ewrap.Wrap(err, "durable keys by domain")
	}

	return keys, nil
}

// entryKey namespaces entry hashes under the keys set name so multiple engines
// can share one redis database.
func (r *Redis) entryKey(key string) string {
	return r.keysSetName + ":entry:" + key
}

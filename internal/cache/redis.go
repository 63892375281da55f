// Package cache provides a Redis-backed cache for tier catalog reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// DefaultTTL bounds how long a stale limit survives when an invalidation
// fails.
const DefaultTTL = 5 * time.Minute

const (
	keyPrefix = "quotaledger:tier_limit:"
	genPrefix = "quotaledger:tier_limit_gen:"
)

var (
	ErrEmptyConnectionURL = errors.New("empty redis connection URL")
	ErrRedisNotReady      = errors.New("redis did not become ready")
	ErrHealthcheckFailed  = errors.New("redis healthcheck failed")
)

// fillScript sets KEYS[1] only while the generation in KEYS[2] still
// equals ARGV[1]. A missing generation key reads as 0.
var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// ConnectConfig controls Connect.
type ConnectConfig struct {
	URL            string
	RetryAttempts  uint64
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

// Connect parses url and pings the server until it answers or the retries
// run out.
func Connect(ctx context.Context, cfg ConnectConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyConnectionURL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client := redis.NewClient(opts)
	backoff := retry.WithMaxRetries(cfg.RetryAttempts, retry.NewConstant(cfg.RetryInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrRedisNotReady, err)
	}

	return client, nil
}

// LimitCache stores catalog lookups as small JSON documents, misses included.
type LimitCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewLimitCache creates a LimitCache. A non-positive ttl uses DefaultTTL.
func NewLimitCache(client redis.UniversalClient, ttl time.Duration) *LimitCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LimitCache{client: client, ttl: ttl}
}

// The braces are a cluster hash tag so a value and its generation share a slot.
func key(tier domain.Tier, metric domain.Metric) string {
	return keyPrefix + "{" + string(tier) + ":" + string(metric) + "}"
}

func genKey(tier domain.Tier, metric domain.Metric) string {
	return genPrefix + "{" + string(tier) + ":" + string(metric) + "}"
}

// Get returns the cached lookup and whether there was one. gen is the
// key's current generation, to be handed back to Fill after a miss.
func (c *LimitCache) Get(ctx context.Context, tier domain.Tier, metric domain.Metric) (domain.LimitLookup, bool, int64, error) {
	vals, err := c.client.MGet(ctx, key(tier, metric), genKey(tier, metric)).Result()
	if err != nil {
		return domain.LimitLookup{}, false, 0, err
	}

	gen, err := parseGeneration(vals[1])
	if err != nil {
		return domain.LimitLookup{}, false, 0, err
	}

	raw, ok := vals[0].(string)
	if !ok {
		return domain.LimitLookup{}, false, gen, nil
	}

	var lookup domain.LimitLookup
	if err := json.Unmarshal([]byte(raw), &lookup); err != nil {
		return domain.LimitLookup{}, false, 0, fmt.Errorf("decode cached tier limit: %w", err)
	}
	return lookup, true, gen, nil
}

func parseGeneration(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	gen, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode tier limit generation: %w", err)
	}
	return gen, nil
}

// Fill stores a lookup for the configured TTL unless the key was
// invalidated after gen was read. It reports whether the value was stored.
func (c *LimitCache) Fill(ctx context.Context, tier domain.Tier, metric domain.Metric, gen int64, lookup domain.LimitLookup) (bool, error) {
	raw, err := json.Marshal(lookup)
	if err != nil {
		return false, err
	}
	keys := []string{key(tier, metric), genKey(tier, metric)}
	stored, err := fillScript.Run(ctx, c.client, keys, gen, raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops a cached lookup and advances its generation so that
// lookups already in flight do not write it back.
func (c *LimitCache) Invalidate(ctx context.Context, tier domain.Tier, metric domain.Metric) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(tier, metric))
		pipe.Del(ctx, key(tier, metric))
		return nil
	})
	return err
}

// Healthcheck pings the server.
func (c *LimitCache) Healthcheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

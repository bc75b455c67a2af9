// Package cache provides Redis-backed report caching. A report is cached
// under the hash of its request: dataset identity plus the canonical
// configuration. Rescanning unchanged data with unchanged settings is a
// cache hit and skips the pass entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/score"
)

// Config configures the Redis report cache.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all report keys
	Prefix string

	// TTL is the time-to-live for cached reports (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(address string) Config {
	return Config{
		Address:  address,
		Prefix:   "datagrade:reports:",
		TTL:      24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// ReportCache stores finished reports in Redis.
type ReportCache struct {
	cfg    Config
	client *redis.Client
}

// New creates a report cache and verifies the connection.
func New(cfg Config) (*ReportCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, dgerrors.Wrap(err, dgerrors.CodeCacheUnavailable, "redis ping failed")
	}
	return &ReportCache{cfg: cfg, client: client}, nil
}

// RequestKey derives the cache key for a scan request. dataset identifies
// the data (path or object URL plus size/etag when known); config is any
// JSON-serializable settings value. Equal requests hash equally because
// json.Marshal emits map keys in sorted order.
func RequestKey(dataset string, config interface{}) (string, error) {
	cfg, err := json.Marshal(config)
	if err != nil {
		return "", dgerrors.Wrap(err, dgerrors.CodeConfigInvalid, "config not serializable")
	}
	h := sha256.New()
	h.Write([]byte(dataset))
	h.Write([]byte{0})
	h.Write(cfg)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached report for a request key, or nil on a miss.
func (c *ReportCache) Get(ctx context.Context, key string) (*score.Report, error) {
	data, err := c.client.Get(ctx, c.cfg.Prefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dgerrors.Wrap(err, dgerrors.CodeCacheUnavailable, "cache get failed")
	}
	var report score.Report
	if err := json.Unmarshal(data, &report); err != nil {
		// A corrupt entry is a miss, not a failure.
		return nil, nil
	}
	return &report, nil
}

// Put stores a report under a request key. Incomplete reports are never
// cached; a partial result must not mask a later full scan.
func (c *ReportCache) Put(ctx context.Context, key string, report *score.Report) error {
	if report.Incomplete {
		return nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeCacheUnavailable, "report not serializable")
	}
	if err := c.client.Set(ctx, c.cfg.Prefix+key, data, c.cfg.TTL).Err(); err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeCacheUnavailable, "cache put failed")
	}
	return nil
}

// Invalidate removes a cached report.
func (c *ReportCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.cfg.Prefix+key).Err(); err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeCacheUnavailable, "cache delete failed")
	}
	return nil
}

// Close releases the connection pool.
func (c *ReportCache) Close() error { return c.client.Close() }

package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the redis connection used for API response caching and the
// per-day change counters shown on the health endpoint.
type Client struct {
	rdb *redis.Client
}

func New(dsn string) (*Client, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.ConnMaxIdleTime = 5 * time.Minute
	opts.ConnMaxLifetime = 30 * time.Minute

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

// NewFromClient wraps an existing connection, used by tests with miniredis.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Cache helpers
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// IsMiss reports whether err is a cache miss rather than a real failure.
func IsMiss(err error) bool {
	return err == redis.Nil
}

const dailyCounterTTL = 48 * time.Hour

func dailyKey(day time.Time) string {
	return "changes:daily:" + day.UTC().Format("2006-01-02")
}

// IncrementDailyChanges bumps the change-event counter for day by n. The
// key expires after two days; the dashboard only shows today's figure.
func (c *Client) IncrementDailyChanges(ctx context.Context, day time.Time, n int) (int64, error) {
	pipe := c.rdb.Pipeline()
	incr := pipe.IncrBy(ctx, dailyKey(day), int64(n))
	pipe.Expire(ctx, dailyKey(day), dailyCounterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// DailyChanges reads the counter for day; a missing key reads as zero.
func (c *Client) DailyChanges(ctx context.Context, day time.Time) (int64, error) {
	n, err := c.rdb.Get(ctx, dailyKey(day)).Int64()
	if IsMiss(err) {
		return 0, nil
	}
	return n, err
}

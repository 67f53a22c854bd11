package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

const (
	scanCount     = 1000
	deleteChunk   = 500
	pingTimeout   = 5 * time.Second
	globMetachars = `*?[]\`
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client implements storage.Store on Redis. Values are plain strings and
// ordered indexes are sorted sets scored by insertion time.
type Client struct {
	rdb redis.UniversalClient
	now func() time.Time
}

var _ storage.Store = (*Client)(nil)

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewFromClient(rdb), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb, now: time.Now}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get failed: %w", err)
	}
	return val, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

func (c *Client) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

func (c *Client) ListGet(ctx context.Context, key string) ([]string, error) {
	items, err := c.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

func (c *Client) ListAppend(ctx context.Context, key, item string) (bool, error) {
	added, err := c.rdb.ZAddNX(ctx, key, redis.Z{
		Score:  c.score(0),
		Member: item,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("zadd failed: %w", err)
	}
	return added == 1, nil
}

func (c *Client) ListUpsert(ctx context.Context, key string, items []string) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	members := make([]redis.Z, 0, len(items))
	for i, item := range items {
		members = append(members, redis.Z{Score: c.score(i), Member: item})
	}
	added, err := c.rdb.ZAddNX(ctx, key, members...).Result()
	if err != nil {
		return 0, fmt.Errorf("zadd failed: %w", err)
	}
	return int(added), nil
}

func (c *Client) ListContains(ctx context.Context, key, item string) (bool, error) {
	err := c.rdb.ZScore(ctx, key, item).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("zscore failed: %w", err)
	}
	return true, nil
}

func (c *Client) ListLen(ctx context.Context, key string) (int, error) {
	n, err := c.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}

func (c *Client) ListDelete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *Client) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	match := escapeGlob(prefix) + "*"
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (c *Client) BulkDelete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteChunk {
		end := min(start+deleteChunk, len(keys))
		pipe := c.rdb.Pipeline()
		for _, key := range keys[start:end] {
			pipe.Del(ctx, key)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("pipelined del failed: %w", err)
		}
	}
	return nil
}

// score orders list members by arrival; offset keeps a batch in input order.
func (c *Client) score(offset int) float64 {
	return float64(c.now().UnixMicro()) + float64(offset)
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, globMetachars) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(globMetachars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

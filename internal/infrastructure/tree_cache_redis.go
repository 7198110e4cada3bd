package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	keyTimestamp = "timestamp"
	keyTree      = "tree"
	keySeparator = ":"
)

// RedisTreeCache keeps the tree document and its timestamp in Redis
type RedisTreeCache struct {
	cl     *redis.Client
	prefix string
}

// NewRedisTreeCache connects to redisURL and verifies the connection
func NewRedisTreeCache(ctx context.Context, redisURL, prefix string) (*RedisTreeCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	cl := redis.NewClient(opt)
	if err := cl.Ping(ctx).Err(); err != nil {
		cl.Close()
		return nil, fmt.Errorf("cannot connect to redis: %w", err)
	}

	return &RedisTreeCache{cl: cl, prefix: prefix}, nil
}

func (c *RedisTreeCache) key(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + keySeparator + name
}

// Load returns the cached timestamp and tree
func (c *RedisTreeCache) Load(ctx context.Context) (int64, []byte, bool, error) {
	values, err := c.cl.MGet(ctx, c.key(keyTimestamp), c.key(keyTree)).Result()
	if err != nil {
		return 0, nil, false, fmt.Errorf("cannot load tree cache: %w", err)
	}

	tsValue, ok := values[0].(string)
	if !ok {
		return 0, nil, false, nil
	}
	ts, err := strconv.ParseInt(tsValue, 10, 64)
	if err != nil {
		return 0, nil, false, nil
	}

	tree, ok := values[1].(string)
	if !ok {
		return ts, nil, false, nil
	}
	return ts, []byte(tree), true, nil
}

// Store replaces the cached timestamp and tree atomically
func (c *RedisTreeCache) Store(ctx context.Context, timestamp int64, tree []byte) error {
	_, err := c.cl.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.key(keyTree), tree, 0)
		pipe.Set(ctx, c.key(keyTimestamp), strconv.FormatInt(timestamp, 10), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cannot store tree cache: %w", err)
	}
	return nil
}

// Clear removes the cached entries
func (c *RedisTreeCache) Clear(ctx context.Context) error {
	err := c.cl.Del(ctx, c.key(keyTimestamp), c.key(keyTree)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cannot clear tree cache: %w", err)
	}
	return nil
}

// Close closes the redis client
func (c *RedisTreeCache) Close() error {
	return c.cl.Close()
}

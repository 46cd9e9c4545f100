package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Key families written by this service.
var KeyPatterns = map[string]string{
	"session":   "sess:*",
	"ratelimit": "rl:*",
	"oauth":     "oauth:state:*",
}

type KeyInfo struct {
	Key     string
	TTL     time.Duration
	Value   string
	Deleted bool
}

// Inspect walks the keys matching pattern with SCAN and calls fn for each.
// With del set every matched key is removed after it is reported, which is
// how an operator drops stale session entries or unblocks a rate limit.
func (c *Client) Inspect(ctx context.Context, pattern string, count int64, del bool, fn func(KeyInfo)) (int, error) {
	if pattern == "" {
		return 0, errors.New("redis: empty scan pattern")
	}
	if count <= 0 {
		count = 200
	}

	var cursor uint64
	total := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return total, fmt.Errorf("redis: scan %q: %w", pattern, err)
		}

		for _, k := range keys {
			info := KeyInfo{Key: k}
			val, err := c.rdb.Get(ctx, k).Result()
			if err != nil && !errors.Is(err, goredis.Nil) {
				return total, fmt.Errorf("redis: get %q: %w", k, err)
			}
			info.Value = val
			info.TTL, _ = c.rdb.TTL(ctx, k).Result()

			if del {
				n, err := c.rdb.Del(ctx, k).Result()
				if err != nil {
					return total, fmt.Errorf("redis: del %q: %w", k, err)
				}
				info.Deleted = n > 0
			}

			total++
			if fn != nil {
				fn(info)
			}
		}

		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

// Command rediskeys lists or clears the Redis keys storefront-auth writes:
// cached session state, rate-limit buckets and pending OAuth states.
//
//	rediskeys -kind ratelimit -del
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/baechuer/storefront-auth/internal/infrastructure/redis"
)

type options struct {
	addr    string
	pass    string
	db      int
	kind    string
	pattern string
	del     bool
	count   int64
	timeout time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("rediskeys", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.addr, "addr", "127.0.0.1:6379", "redis address host:port")
	fs.StringVar(&o.pass, "pass", "", "redis password")
	fs.IntVar(&o.db, "db", 0, "redis db")
	fs.StringVar(&o.kind, "kind", "session", "key family: "+strings.Join(kinds(), ", "))
	fs.StringVar(&o.pattern, "pattern", "", "raw SCAN pattern, overrides -kind")
	fs.BoolVar(&o.del, "del", false, "delete matched keys")
	fs.Int64Var(&o.count, "count", 200, "SCAN COUNT hint")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.pattern == "" {
		p, ok := redis.KeyPatterns[o.kind]
		if !ok {
			return o, fmt.Errorf("unknown kind %q", o.kind)
		}
		o.pattern = p
	}
	return o, nil
}

func kinds() []string {
	out := make([]string, 0, len(redis.KeyPatterns))
	for k := range redis.KeyPatterns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func run(ctx context.Context, c *redis.Client, o options, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	n, err := c.Inspect(ctx, o.pattern, o.count, o.del, func(k redis.KeyInfo) {
		fmt.Fprintf(stdout, "%s ttl=%s val=%q", k.Key, k.TTL, k.Value)
		if k.Deleted {
			fmt.Fprint(stdout, " deleted")
		}
		fmt.Fprintln(stdout)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d keys matched %q\n", n, o.pattern)
	return nil
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	c := redis.New(o.addr, o.pass, o.db)
	defer c.Close()

	if err := run(context.Background(), c, o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

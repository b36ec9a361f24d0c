package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options describes how to reach redis. Addr may also be a redis:// URL, in
// which case Password and DB are taken from the URL.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// RedisOptions resolves o into go-redis options.
func (o Options) RedisOptions() (*redis.Options, error) {
	if strings.HasPrefix(o.Addr, "redis://") || strings.HasPrefix(o.Addr, "rediss://") {
		opts, err := redis.ParseURL(o.Addr)
		if err != nil {
			return nil, fmt.Errorf("platform/cache: parse url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB}, nil
}

// New creates a redis client and verifies connectivity.
func New(ctx context.Context, o Options) (*redis.Client, error) {
	opts, err := o.RedisOptions()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

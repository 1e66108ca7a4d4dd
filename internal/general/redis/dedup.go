// Package redis filters duplicate deliveries by envelope id.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/ports"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "dispatch:handled:"

// NewClient builds a client from the redis section and pings it.
func NewClient(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// Deduplicator remembers handled envelope ids for ttl.
type Deduplicator struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewDeduplicator constructs a Deduplicator.
func NewDeduplicator(client *goredis.Client, ttl time.Duration) ports.MessageDeduplicator {
	return &Deduplicator{client: client, ttl: ttl}
}

// Seen reports whether messageID was marked and has not expired.
func (d *Deduplicator) Seen(ctx context.Context, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return false, nil
	}
	_, err := d.client.Get(ctx, keyPrefix+messageID).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", messageID, err)
	}
	return true, nil
}

// Mark records messageID as handled.
func (d *Deduplicator) Mark(ctx context.Context, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return nil
	}
	if err := d.client.Set(ctx, keyPrefix+messageID, time.Now().UTC().Unix(), d.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", messageID, err)
	}
	return nil
}

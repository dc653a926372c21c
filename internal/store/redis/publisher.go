// Package redis publishes finished analytics snapshots to Redis so
// external consumers (dashboards, automations) can read them without
// touching SQLite. Cache-only: everything here is rebuilt from candles on
// restart.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 24 * time.Hour

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes the latest analytics snapshot per instrument and
// notifies pubsub subscribers.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a new Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishAnalytics writes the snapshot JSON as the latest value for the
// instrument and publishes it, pipelined into one roundtrip.
func (p *Publisher) PublishAnalytics(ctx context.Context, instrument string, payload []byte) error {
	latestKey := "analytics:latest:" + instrument
	pubsubCh := "pub:analytics:" + instrument

	pipe := p.client.Pipeline()
	pipe.Set(ctx, latestKey, payload, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish analytics %s: %w", instrument, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

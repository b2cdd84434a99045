// Package redis publishes vehicle events over Redis pub/sub.
//
// Events are encoded with the configured codec and sent to one channel, or
// to one channel per vehicle when PerVehicle is set. Publishing retries with
// exponential backoff on connection errors.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/mavbridge/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "mavbridge:vehicle_updates"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: mavbridge:vehicle_updates).
	Channel string
	// PerVehicle appends ":<system_id>" to the channel name.
	PerVehicle bool
	// Format is the payload codec, json (default) or msgpack.
	Format string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// Adapter publishes vehicle events via Redis PUBLISH.
type Adapter struct {
	config Config
	codec  adapter.Codec
	client *goredis.Client
}

// New creates a Redis pub/sub adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	codec, err := adapter.NewCodec(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}

	return &Adapter{
		config: cfg,
		codec:  codec,
		client: goredis.NewClient(opts),
	}, nil
}

// Channel returns the channel an event for system id is published to.
func (a *Adapter) Channel(id uint8) string {
	if !a.config.PerVehicle {
		return a.config.Channel
	}
	return a.config.Channel + ":" + strconv.Itoa(int(id))
}

// Publish encodes the event and PUBLISHes it, retrying with exponential
// backoff on failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.VehicleEvent) error {
	body, err := a.codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	channel := a.Channel(event.SystemID)

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.client.Publish(publishCtx, channel, body).Err()
	})
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)

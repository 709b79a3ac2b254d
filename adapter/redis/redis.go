// Package redis announces scan_completed events on a Redis pub/sub channel.
//
// Subscribers that connect late can read the most recent event from an
// optional key written in the same transaction as the PUBLISH.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/evq/adapter"
)

// DefaultChannel is the channel used when none is configured.
const DefaultChannel = "evq:scan_completed"

// DefaultTimeout bounds one publish round trip.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the retry count used when none is configured.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL string
	// Channel receives the PUBLISH (default evq:scan_completed).
	Channel string
	// LastKey, when set, is overwritten with every published event.
	LastKey string
	// Timeout bounds one attempt (default 5s).
	Timeout time.Duration
	// Retries after the first attempt.
	Retries int
}

// Adapter publishes events with one Redis client.
type Adapter struct {
	client  *goredis.Client
	channel string
	lastKey string
	timeout time.Duration
	retries int
}

// New parses the URL and returns an adapter. No connection is made until
// the first Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if err := adapter.CheckRetries(cfg.Retries); err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}

	a := &Adapter{
		client:  goredis.NewClient(opts),
		channel: cfg.Channel,
		lastKey: cfg.LastKey,
		timeout: cfg.Timeout,
		retries: cfg.Retries,
	}
	if a.channel == "" {
		a.channel = DefaultChannel
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	return a, nil
}

// Publish sends event to the channel, and to LastKey when configured.
// A closed client fails at once; other errors are retried with backoff.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ScanCompletedEvent) error {
	body, err := adapter.Encode(event)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return adapter.Retry(ctx, "redis", a.retries, func(ctx context.Context) error {
		return a.send(ctx, body)
	}, func(err error) bool {
		return errors.Is(err, goredis.ErrClosed)
	})
}

func (a *Adapter) send(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if a.lastKey == "" {
		return a.client.Publish(ctx, a.channel, body).Err()
	}
	_, err := a.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, a.lastKey, body, 0)
		p.Publish(ctx, a.channel, body)
		return nil
	})
	return err
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)

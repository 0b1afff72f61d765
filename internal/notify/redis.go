package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

const DefaultChannel = "civic-ledger:events"

// Publisher is the subset of the go-redis client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes each event envelope to a Redis channel. Every event is
// also published to "<channel>:<kind>" so subscribers can filter by kind.
type RedisSink struct {
	client     Publisher
	channel    string
	maxElapsed time.Duration
}

func NewRedisSink(client Publisher, channel string, maxElapsed time.Duration) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel, maxElapsed: maxElapsed}
}

// NewRedisClient parses redisURL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, e lifecycle.Event) error {
	payload, err := Encode(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	for _, channel := range []string{s.channel, s.channel + ":" + string(e.Kind())} {
		if err := s.publish(ctx, channel, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisSink) publish(ctx context.Context, channel string, payload []byte) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = s.maxElapsed

	return backoff.Retry(func() error {
		err := s.client.Publish(ctx, channel, payload).Err()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}, backoff.WithContext(bo, ctx))
}

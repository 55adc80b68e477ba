package support

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisOpTimeout         = 5 * time.Second
	subscriptionRetryDelay = time.Second
)

// PublishState stores payload under key and announces it on channel, so an
// instance that starts later reads the key and running ones get the message.
func PublishState(ctx context.Context, client *redis.Client, key, channel string, payload []byte) error {
	if client == nil || len(payload) == 0 {
		return nil
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := client.Set(opCtx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	if err := client.Publish(opCtx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish on %s: %w", channel, err)
	}
	return nil
}

// LoadState returns the payload last stored under key, or nil if there is none.
func LoadState(ctx context.Context, client *redis.Client, key string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	payload, err := client.Get(opCtx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return payload, nil
}

// FollowState hands every payload published on channel to apply until ctx is done.
func FollowState(ctx context.Context, client *redis.Client, channel string, apply func([]byte) error) {
	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			log.Error("redis subscription error", "channel", channel, "error", err)
			if !sleepCtx(ctx, subscriptionRetryDelay) {
				return
			}
			continue
		}

		if err := apply([]byte(msg.Payload)); err != nil {
			log.Error("redis sync: update rejected", "channel", channel, "error", err)
		}
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

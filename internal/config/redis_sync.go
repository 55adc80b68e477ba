package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"loginwall/internal/support"
)

const (
	redisConfigKey     = "loginwall:config:settings"
	redisConfigChannel = "loginwall:config:updates"
)

var redisSync struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
}

// EnableRedisSynchronization shares the settings, and with them the allow-list,
// between instances. A copy already stored in Redis replaces the local file;
// otherwise the local settings are published for the others.
func EnableRedisSynchronization(ctx context.Context, client *redis.Client) {
	if client == nil {
		log.Warn("Config synchronization disabled: redis client is nil")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisSync.mu.Lock()
	if redisSync.client != nil {
		redisSync.mu.Unlock()
		return
	}
	redisSync.client = client
	redisSync.ctx = ctx
	redisSync.mu.Unlock()

	payload, err := support.LoadState(ctx, client, redisConfigKey)
	switch {
	case err != nil:
		log.Error("Config sync: failed to load configuration from redis", "error", err)
	case payload != nil:
		if err := ApplyRemoteConfig(payload); err != nil {
			log.Error("Config sync: stored configuration rejected", "error", err)
		}
	default:
		if err := broadcastConfig(GetConfig()); err != nil {
			log.Error("Config sync: failed to publish configuration to redis", "error", err)
		}
	}

	go support.FollowState(ctx, client, redisConfigChannel, ApplyRemoteConfig)
}

// ApplyRemoteConfig applies settings published by another instance and
// persists them locally. Allow-list hooks fire when the ranges changed.
func ApplyRemoteConfig(payload []byte) error {
	var cfg Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return fmt.Errorf("decode remote configuration: %w", err)
	}
	return applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"})
}

func broadcastConfig(cfg Config) error {
	redisSync.mu.RLock()
	client, ctx := redisSync.client, redisSync.ctx
	redisSync.mu.RUnlock()

	if client == nil {
		return nil
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serialize configuration: %w", err)
	}
	return support.PublishState(ctx, client, redisConfigKey, redisConfigChannel, payload)
}

package allowlist

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
	redisFetchedKey     = "loginwall:allowlist:fetched"
	redisFetchedChannel = "loginwall:allowlist:fetched:updates"
)

// fetchedState is what the refresh leader publishes after downloading sources.
type fetchedState struct {
	Origin  string              `json:"origin"`
	Sources map[string][]string `json:"sources"`
}

var fetchedSync struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
}

// EnableFetchedSync shares descriptors downloaded from sources between
// instances that have no database. Only the refresh leader downloads; the
// others take its results from Redis.
func EnableFetchedSync(ctx context.Context, client *redis.Client) {
	if client == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fetchedSync.mu.Lock()
	if fetchedSync.client != nil {
		fetchedSync.mu.Unlock()
		return
	}
	fetchedSync.client = client
	fetchedSync.ctx = ctx
	fetchedSync.mu.Unlock()

	payload, err := support.LoadState(ctx, client, redisFetchedKey)
	if err != nil {
		log.Warn("Allowlist sync: failed to load fetched ranges", "error", err)
	} else if payload != nil {
		if err := handleFetchedSyncEvent(payload); err != nil {
			log.Warn("Allowlist sync: stored fetched ranges rejected", "error", err)
		}
	}

	go support.FollowState(ctx, client, redisFetchedChannel, handleFetchedSyncEvent)
}

func publishFetched() error {
	fetchedSync.mu.RLock()
	client, ctx := fetchedSync.client, fetchedSync.ctx
	fetchedSync.mu.RUnlock()

	if client == nil {
		return nil
	}

	payload, err := json.Marshal(currentFetchedState())
	if err != nil {
		return fmt.Errorf("serialize fetched ranges: %w", err)
	}
	return support.PublishState(ctx, client, redisFetchedKey, redisFetchedChannel, payload)
}

func currentFetchedState() fetchedState {
	state := fetchedState{Origin: support.InstanceID, Sources: map[string][]string{}}
	fetchedCache.Range(func(key, value any) bool {
		state.Sources[key.(string)] = value.([]string)
		return true
	})
	return state
}

// handleFetchedSyncEvent replaces the in-memory fetched ranges with those
// another instance published and rebuilds the snapshot.
func handleFetchedSyncEvent(payload []byte) error {
	var state fetchedState
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decode fetched ranges: %w", err)
	}
	if state.Origin == support.InstanceID {
		return nil
	}

	fetchedCache.Range(func(key, _ any) bool {
		if _, ok := state.Sources[key.(string)]; !ok {
			fetchedCache.Delete(key)
		}
		return true
	})
	for src, descriptors := range state.Sources {
		fetchedCache.Store(src, dedupe(descriptors))
	}

	return LoadCache(context.Background())
}

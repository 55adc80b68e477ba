package support

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	leaderKeyPrefix      = "loginwall:leader:"
	DefaultLeadershipTTL = 45 * time.Second
	leaderRetryDelay     = time.Second
	leaderScriptTimeout  = 5 * time.Second
)

var (
	errLockLost = errors.New("support: leader lock lost")
	leaderTerms atomic.Uint64

	// Both scripts act only while the caller's token still holds the key.
	extendLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RunWithLeader competes for the named lock and calls run each time this
// instance wins it. run's context is cancelled when the lock is lost. It only
// returns once ctx is done or no Redis client is available.
func RunWithLeader(ctx context.Context, name string, ttl time.Duration, run func(context.Context)) error {
	if run == nil {
		return errors.New("support: leader run function cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}

	client, err := GetRedisClient()
	if err != nil {
		return fmt.Errorf("support: leader lock redis client: %w", err)
	}

	key := leaderKeyPrefix + name
	for {
		token := fmt.Sprintf("%s-%d", InstanceID, leaderTerms.Add(1))
		won, err := client.SetNX(ctx, key, token, ttl).Result()
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			log.Warn("leader lock: acquire failed", "lock", name, "error", err)
		case won:
			holdLeadership(ctx, client, key, token, ttl, run)
		}

		if !sleepCtx(ctx, leaderRetryDelay) {
			return ctx.Err()
		}
	}
}

func holdLeadership(ctx context.Context, client *redis.Client, key, token string, ttl time.Duration, run func(context.Context)) {
	leaderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		keepLock(leaderCtx, cancel, client, key, token, ttl)
	}()

	log.Debug("leader lock: acquired", "key", key)
	run(leaderCtx)
	cancel()
	<-renewed

	if err := runLockScript(releaseLockScript, client, key, token); err != nil && !errors.Is(err, errLockLost) {
		log.Warn("leader lock: release failed", "key", key, "error", err)
	}
	log.Debug("leader lock: released", "key", key)
}

func keepLock(ctx context.Context, lost context.CancelFunc, client *redis.Client, key, token string, ttl time.Duration) {
	ticker := time.NewTicker(renewInterval(ttl))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runLockScript(extendLockScript, client, key, token, ttl.Milliseconds()); err != nil {
				log.Warn("leader lock: renewal failed", "key", key, "error", err)
				lost()
				return
			}
		}
	}
}

// renewInterval extends the lock three times per ttl, at most once a second.
func renewInterval(ttl time.Duration) time.Duration {
	return max(ttl/3, time.Second)
}

func runLockScript(script *redis.Script, client *redis.Client, key, token string, args ...any) error {
	ctx, cancel := context.WithTimeout(context.Background(), leaderScriptTimeout)
	defer cancel()

	res, err := script.Run(ctx, client, []string{key}, append([]any{token}, args...)...).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return errLockLost
	}
	return nil
}

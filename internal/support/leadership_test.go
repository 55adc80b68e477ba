package support

import (
	"context"
	"testing"
	"time"
)

func TestRunWithLeaderRequiresRun(t *testing.T) {
	if err := RunWithLeader(context.Background(), "allowlist_refresh", time.Second, nil); err == nil {
		t.Fatal("RunWithLeader accepted a nil run function")
	}
}

func TestRenewInterval(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{ttl: DefaultLeadershipTTL, want: 15 * time.Second},
		{ttl: 2 * time.Second, want: time.Second},
		{ttl: 0, want: time.Second},
	}
	for _, tt := range tests {
		if got := renewInterval(tt.ttl); got != tt.want {
			t.Fatalf("renewInterval(%s) = %s, want %s", tt.ttl, got, tt.want)
		}
	}
}

func TestSleepCtx(t *testing.T) {
	if !sleepCtx(context.Background(), time.Millisecond) {
		t.Fatal("sleepCtx returned false for a live context")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepCtx(ctx, time.Hour) {
		t.Fatal("sleepCtx returned true for a cancelled context")
	}
}

func TestRedisConfigured(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	if RedisConfigured() {
		t.Fatal("RedisConfigured reported true with an empty REDIS_URL")
	}

	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	if !RedisConfigured() {
		t.Fatal("RedisConfigured reported false with REDIS_URL set")
	}
}

func TestPublishStateWithoutClient(t *testing.T) {
	if err := PublishState(context.Background(), nil, "loginwall:test", "loginwall:test:updates", []byte("{}")); err != nil {
		t.Fatalf("PublishState without client returned %v", err)
	}
}

package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultAllowlistRefreshInterval = 15 * time.Minute

var (
	allowlistRefreshInterval   atomic.Value
	allowlistIntervalListeners []chan time.Duration
	listenersMu                sync.Mutex
)

func init() {
	allowlistRefreshInterval.Store(defaultAllowlistRefreshInterval)
}

func SetBetweenTime() {
	setAllowlistRefreshInterval(calculateAllowlistRefreshInterval(GetConfig()))
}

// CalculateBetweenTime converts a Timer into a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfCheckingPeriod(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfCheckingPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func GetAllowlistRefreshInterval() time.Duration {
	return allowlistRefreshInterval.Load().(time.Duration)
}

// AllowlistIntervalUpdates returns a channel primed with the current interval
// that receives every later change.
func AllowlistIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	allowlistIntervalListeners = append(allowlistIntervalListeners, ch)
	listenersMu.Unlock()

	ch <- GetAllowlistRefreshInterval()
	return ch
}

func setAllowlistRefreshInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultAllowlistRefreshInterval
	}

	current := GetAllowlistRefreshInterval()
	if current == interval {
		return
	}

	allowlistRefreshInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range allowlistIntervalListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateAllowlistRefreshInterval(cfg Config) time.Duration {
	timer := cfg.Allowlist.RefreshTimer
	if timer.Days == 0 && timer.Hours == 0 && timer.Minutes == 0 && timer.Seconds == 0 {
		return defaultAllowlistRefreshInterval
	}
	return CalculateBetweenTime(timer)
}

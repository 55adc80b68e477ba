package allowlist

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"loginwall/internal/config"
	"loginwall/internal/database"
	"loginwall/internal/iprange"
	"loginwall/internal/support"
)

const (
	maxResponseBytes       = 1 << 20
	refreshLockName        = "allowlist_refresh"
	defaultRefreshInterval = 15 * time.Minute
)

var (
	snapshot     atomicList
	fetchedCache sync.Map // source URL -> []string
	refreshOnce  singleflight.Group
	httpClient   = &http.Client{Timeout: 30 * time.Second}

	// sourcesChanged wakes the fetching loop when the configured sources change.
	sourcesChanged = make(chan struct{}, 1)
)

type atomicList struct {
	val atomic.Value
}

func (a *atomicList) Load() []string {
	raw, ok := a.val.Load().([]string)
	if !ok {
		return nil
	}
	return raw
}

func (a *atomicList) Store(l []string) {
	a.val.Store(l)
}

type RefreshOutcome struct {
	Sources       int
	FailedSources int
	Fetched       int
	Removed       int64
	TotalRanges   int
}

func init() {
	snapshot.Store([]string(nil))
	config.OnAllowlistChange(onConfigChange)
}

// onConfigChange rebuilds the snapshot as soon as the configured ranges or
// sources change, so a revoked range stops matching immediately.
func onConfigChange(previous, current config.Config) {
	if err := LoadCache(context.Background()); err != nil {
		log.Warn("Allowlist reload after configuration change failed", "error", err)
	}

	if !slices.Equal(previous.Allowlist.Sources, current.Allowlist.Sources) {
		select {
		case sourcesChanged <- struct{}{}:
		default:
		}
	}
}

// Initialize builds the first snapshot from configuration and the database.
func Initialize(ctx context.Context) error {
	return LoadCache(ctx)
}

// LoadCache rebuilds the snapshot: configured descriptors first, then those
// fetched from the configured sources, stored or held in memory. Entries of
// sources no longer configured are left out.
func LoadCache(ctx context.Context) error {
	merged := config.GetAllowedRanges()
	sources := config.GetConfig().Allowlist.Sources

	if database.DB != nil {
		stored, err := database.ListAllowedRanges(ctx)
		if err != nil {
			return fmt.Errorf("load stored ranges: %w", err)
		}
		for _, r := range stored {
			if slices.Contains(sources, r.Source) {
				merged = append(merged, r.Descriptor)
			}
		}
	} else {
		for _, src := range sources {
			if cached, ok := fetchedCache.Load(src); ok {
				merged = append(merged, cached.([]string)...)
			}
		}
	}

	merged = dedupe(merged)
	diagnose(merged)
	snapshot.Store(merged)
	return nil
}

// Ranges returns the current descriptor snapshot. Callers must not modify it.
func Ranges() []string {
	return snapshot.Load()
}

// Allowed reports whether ip lies in any descriptor of the current snapshot.
// The error is informational: the boolean is already the fail-closed answer.
func Allowed(ip string) (bool, error) {
	return iprange.ContainsAny(ip, Ranges())
}

// StartRefreshRoutine reloads the snapshot on the configured interval. With
// leaderElection only the instance holding the Redis lock fetches sources;
// every instance still reloads.
func StartRefreshRoutine(ctx context.Context, leaderElection bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Value
	initial := config.GetAllowlistRefreshInterval()
	if initial <= 0 {
		initial = defaultRefreshInterval
	}
	intervalValue.Store(initial)

	reloadSignal := make(chan struct{}, 1)
	fetchSignal := make(chan struct{}, 1)
	updates := config.AllowlistIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				if newInterval <= 0 {
					newInterval = defaultRefreshInterval
				}
				intervalValue.Store(newInterval)
				for _, signal := range []chan struct{}{reloadSignal, fetchSignal} {
					select {
					case signal <- struct{}{}:
					default:
					}
				}
			}
		}
	}()

	if !leaderElection {
		runRefreshLoop(ctx, &intervalValue, fetchSignal, true)
		return
	}

	go runRefreshLoop(ctx, &intervalValue, reloadSignal, false)

	err := support.RunWithLeader(ctx, refreshLockName, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runRefreshLoop(leaderCtx, &intervalValue, fetchSignal, true)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Allowlist refresh routine stopped", "error", err)
	}
}

func runRefreshLoop(ctx context.Context, intervalValue *atomic.Value, updateSignal <-chan struct{}, fetch bool) {
	current := intervalValue.Load().(time.Duration)
	if current <= 0 {
		current = defaultRefreshInterval
	}

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	tick := func(reason string) {
		if fetch {
			triggerRefresh(ctx, reason)
			return
		}
		if err := LoadCache(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Allowlist reload failed", "reason", reason, "error", err)
		}
	}

	var sourceSignal <-chan struct{}
	if fetch {
		sourceSignal = sourcesChanged
	}

	tick("startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick("scheduled")
		case <-sourceSignal:
			tick("sources changed")
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval <= 0 {
				newInterval = defaultRefreshInterval
			}
			if newInterval == current {
				continue
			}
			drainTicker(ticker)
			current = newInterval
			ticker.Reset(current)
		}
	}
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}

func triggerRefresh(ctx context.Context, reason string) {
	outcome, err := Refresh(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Allowlist refresh canceled", "reason", reason)
		} else {
			log.Error("Allowlist refresh failed", "reason", reason, "error", err)
		}
		return
	}

	log.Info("Allowlist refresh completed",
		"reason", reason,
		"sources", outcome.Sources,
		"failed_sources", outcome.FailedSources,
		"fetched", outcome.Fetched,
		"removed", outcome.Removed,
		"ranges", outcome.TotalRanges,
	)
}

// Refresh downloads every configured source, stores what it found and
// rebuilds the snapshot. Concurrent callers share one run.
func Refresh(ctx context.Context) (*RefreshOutcome, error) {
	result, err, _ := refreshOnce.Do("refresh", func() (interface{}, error) {
		return doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	outcome, _ := result.(*RefreshOutcome)
	return outcome, nil
}

func doRefresh(ctx context.Context) (*RefreshOutcome, error) {
	sources := append([]string(nil), config.GetConfig().Allowlist.Sources...)
	outcome := &RefreshOutcome{Sources: len(sources)}

	for _, src := range sources {
		descriptors, err := fetchSource(ctx, src)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			log.Warn("Allowlist source fetch failed", "source", src, "error", err)
			outcome.FailedSources++
			continue
		}
		outcome.Fetched += len(descriptors)

		if database.DB == nil {
			fetchedCache.Store(src, descriptors)
			continue
		}

		_, removed, err := database.ReplaceSourceRanges(ctx, src, descriptors)
		if err != nil {
			return nil, fmt.Errorf("store ranges from %s: %w", src, err)
		}
		outcome.Removed += removed
	}

	removed, err := pruneStaleSources(ctx, sources)
	if err != nil {
		return nil, err
	}
	outcome.Removed += removed

	if database.DB == nil {
		if err := publishFetched(); err != nil {
			log.Warn("Allowlist fetched ranges not shared", "error", err)
		}
	}

	if err := LoadCache(ctx); err != nil {
		return nil, err
	}
	outcome.TotalRanges = len(Ranges())
	return outcome, nil
}

// pruneStaleSources drops what was fetched from sources that are no longer
// configured.
func pruneStaleSources(ctx context.Context, sources []string) (int64, error) {
	if database.DB == nil {
		var removed int64
		fetchedCache.Range(func(key, value any) bool {
			if !slices.Contains(sources, key.(string)) {
				removed += int64(len(value.([]string)))
				fetchedCache.Delete(key)
			}
			return true
		})
		return removed, nil
	}

	stored, err := database.ListAllowedRanges(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored ranges: %w", err)
	}

	var stale []string
	for _, r := range stored {
		if !slices.Contains(sources, r.Source) {
			stale = append(stale, r.Descriptor)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	removed, err := database.DeleteAllowedRanges(ctx, stale)
	if err != nil {
		return 0, fmt.Errorf("delete stale ranges: %w", err)
	}
	return removed, nil
}

func fetchSource(ctx context.Context, source string) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return parseDescriptors(content), nil
}

// parseDescriptors reads one descriptor per line. Blank lines and anything
// after a '#' are ignored.
func parseDescriptors(payload []byte) []string {
	scanner := bufio.NewScanner(bytes.NewReader(payload))

	var out []string
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}

	if err := scanner.Err(); err != nil {
		log.Warn("Allowlist scanner warning", "error", err)
	}
	return dedupe(out)
}

func dedupe(descriptors []string) []string {
	seen := make(map[string]struct{}, len(descriptors))
	out := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// diagnose logs descriptors that only work because matching is permissive.
// They stay in the list unchanged.
func diagnose(descriptors []string) {
	for _, raw := range descriptors {
		d, err := iprange.ParseStrict(raw)
		if err == nil {
			continue
		}
		if errors.Is(err, iprange.ErrUnrecognizedRangeFormat) {
			log.Warn("Allowlist entry will never match", "range", raw, "error", err)
			continue
		}
		log.Warn("Allowlist entry is malformed", "range", raw, "interpreted_as", d.String(), "error", err)
	}
}

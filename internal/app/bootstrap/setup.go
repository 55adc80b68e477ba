package bootstrap

import (
	"context"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"loginwall/internal/allowlist"
	"loginwall/internal/config"
	"loginwall/internal/database"
	"loginwall/internal/geolite"
	"loginwall/internal/support"
)

// Setup loads settings and connects the optional backends. It reports
// whether Redis is available for leader election.
func Setup(ctx context.Context) bool {
	config.ReadSettings()

	if os.Getenv("DB_HOST") != "" {
		if _, err := database.SetupDB(); err != nil {
			log.Error("Database unavailable, continuing with configured ranges only", "error", err)
		}
	}

	leaderElection := false
	if support.RedisConfigured() {
		client, err := support.GetRedisClient()
		if err != nil {
			log.Error("Redis unavailable, configuration sync disabled", "error", err)
		} else {
			config.EnableRedisSynchronization(ctx, client)
			if database.DB == nil {
				allowlist.EnableFetchedSync(ctx, client)
			}
			leaderElection = true
		}
	}

	// Applied after the redis sync so the override reaches every instance.
	if ranges := splitRanges(os.Getenv("ALLOWED_RANGES")); len(ranges) > 0 {
		if err := config.UpdateAllowlist(ranges); err != nil {
			log.Error("Error applying ALLOWED_RANGES", "error", err)
		}
	}

	if err := geolite.Open(config.GetConfig().GeoLite.CountryDBPath); err != nil {
		log.Warn("GeoLite country database not loaded", "error", err)
	}

	if err := allowlist.Initialize(ctx); err != nil {
		log.Error("Error loading allowlist", "error", err)
	}
	log.Infof("Loaded %d allowed ranges", len(allowlist.Ranges()))

	return leaderElection
}

// splitRanges reads a comma separated descriptor list.
func splitRanges(raw string) []string {
	var ranges []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ranges = append(ranges, part)
		}
	}
	return ranges
}

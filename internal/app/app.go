package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"loginwall/internal/allowlist"
	"loginwall/internal/app/bootstrap"
	"loginwall/internal/app/server"
	"loginwall/internal/config"
	"loginwall/internal/geolite"
	"loginwall/internal/support"
)

const defaultPort = 8080

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	portFlag := flag.Int("port", defaultPort, "Port for the landing page server")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)
	configureLogging()

	port := resolvePort("LOGINWALL_PORT", "PORT", *portFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	leaderElection := bootstrap.Setup(ctx)
	defer func() {
		if err := geolite.Close(); err != nil {
			log.Warn("error closing geolite database", "error", err)
		}
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		allowlist.StartRefreshRoutine(gctx, leaderElection)
		return nil
	})
	g.Go(func() error {
		return server.OpenRoutes(gctx, port)
	})

	return g.Wait()
}

// configureLogging emits JSON at info level in production and verbose text
// otherwise.
func configureLogging() {
	if config.InProductionMode {
		log.SetFormatter(log.JSONFormatter)
		log.SetLevel(log.InfoLevel)
		return
	}
	log.SetFormatter(log.TextFormatter)
	log.SetLevel(log.DebugLevel)
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}

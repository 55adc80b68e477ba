package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/netutil"

	"loginwall/internal/config"
	"loginwall/internal/eventlog"
)

const shutdownTimeout = 5 * time.Second

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newRouter() *http.ServeMux {
	router := http.NewServeMux()
	router.HandleFunc("GET /{$}", getLanding)
	router.HandleFunc("GET /healthz", getHealth)
	router.HandleFunc("GET /version", getVersion)
	return router
}

// OpenRoutes serves the landing page on port until ctx is cancelled.
func OpenRoutes(ctx context.Context, port int) error {
	cfg := config.GetConfig()
	eventLogger = eventlog.New(eventlog.WithLocation(eventlog.LoadLocation(cfg.EventLog.Timezone)))

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
		log.Debug("Connection limit enabled", "max", cfg.Server.MaxConnections)
	}

	server := &http.Server{
		Handler:           newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown failed", "error", err)
		}
	}()

	log.Infof("Starting loginwall on port :%d", port)
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

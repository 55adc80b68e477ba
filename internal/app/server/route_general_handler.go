package server

import (
	"net/http"

	"loginwall/internal/allowlist"
	"loginwall/internal/geolite"
)

func getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"ranges":  len(allowlist.Ranges()),
		"geolite": geolite.Enabled(),
	})
}

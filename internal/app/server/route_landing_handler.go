package server

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/charmbracelet/log"

	"loginwall/internal/allowlist"
	"loginwall/internal/config"
	"loginwall/internal/eventlog"
	"loginwall/internal/geolite"
)

const pageTitle = "Sign in"

//go:embed templates/*.html
var templateFS embed.FS

var (
	pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

	eventLogger = eventlog.New()
	allowedFn   = allowlist.Allowed
)

func deniedSeverity(name string) eventlog.Severity {
	severity, err := eventlog.ParseSeverity(name)
	if err != nil {
		log.Warn("Invalid denied_severity, using warning", "value", name)
		return eventlog.Warning
	}
	return severity
}

type landingPage struct {
	Title  string
	Action string
	IP     string
}

func getLanding(w http.ResponseWriter, r *http.Request) {
	cfg := config.GetConfig()
	ip := clientIP(r, cfg.Server.TrustForwardedFor)

	allowed, err := allowedFn(ip)
	if err != nil {
		log.Debug("allowlist check reported problems", "ip", ip, "error", err)
	}

	entry := eventlog.Entry{
		Message:     "landing page served",
		Severity:    eventlog.Info,
		RequesterIP: ip,
		Referer:     r.Referer(),
		UserAgent:   r.UserAgent(),
	}
	if !allowed {
		entry.Message = "landing page denied"
		entry.Severity = deniedSeverity(cfg.EventLog.DeniedSeverity)
	}
	if geolite.Enabled() {
		if iso, err := geolite.CountryISO(ip); err == nil && iso != "" {
			entry.Message += " country=" + iso
		}
	}

	// The decision is final at this point; a failed write is only reported.
	if err := eventLogger.Append(cfg.EventLog.Path, entry); err != nil {
		log.Warn("failed to append event log", "path", cfg.EventLog.Path, "error", err)
	}

	page := landingPage{Title: pageTitle, Action: "/login", IP: ip}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	name := "landing.html"
	if !allowed {
		name = "denied.html"
		w.WriteHeader(http.StatusForbidden)
	}
	if err := pages.ExecuteTemplate(w, name, page); err != nil {
		log.Error("failed to render page", "template", name, "error", err)
	}
}

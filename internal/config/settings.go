package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

type Config struct {
	Allowlist struct {
		// Ranges is the ordered list of range descriptors checked for every request.
		Ranges       []string `json:"ranges"`
		Sources      []string `json:"sources"`
		RefreshTimer Timer    `json:"refresh_timer"`
	} `json:"allowlist"`

	EventLog struct {
		Path     string `json:"path"`
		Timezone string `json:"timezone"`
		// DeniedSeverity is the level recorded for refused requests.
		DeniedSeverity string `json:"denied_severity"`
	} `json:"event_log"`

	GeoLite struct {
		CountryDBPath string `json:"country_db_path"`
	} `json:"geolite"`

	Server struct {
		TrustForwardedFor bool `json:"trust_forwarded_for"`
		MaxConnections    int  `json:"max_connections"`
	} `json:"server"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const (
	DefaultEventLogPath   = "./logs/log.log"
	DefaultTimezone       = "America/El_Salvador"
	DefaultDeniedSeverity = "warning"
)

var (
	//go:embed default_settings.json
	defaultConfig []byte

	settingsFilePath = "data/settings.json"

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool

	allowlistHooks []func(previous, current Config)
	hooksMu        sync.Mutex
)

func init() {
	configValue.Store(Config{})
}

// SetSettingsPath overrides the location of the settings file.
func SetSettingsPath(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	settingsFilePath = path
}

func ReadSettings() {
	configMu.Lock()
	path := settingsFilePath
	configMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration", "path", path)

			err = os.MkdirAll(filepath.Dir(path), os.ModePerm)
			if err != nil {
				log.Error("Error creating directory for settings file", "error", err)
				return
			}

			err = os.WriteFile(path, defaultConfig, 0o644)
			if err != nil {
				log.Error("Error writing default settings file", "error", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file", "error", err)
			return
		}
	}

	var newConfig Config
	err = json.Unmarshal(data, &newConfig)
	if err != nil {
		log.Error("Error unmarshalling settings file", "error", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file", "error", err)
		return
	}

	log.Debug("Settings file loaded successfully", "ranges", len(newConfig.Allowlist.Ranges))
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update", "error", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

// UpdateAllowlist replaces the configured range descriptors, keeping the rest of the config.
func UpdateAllowlist(ranges []string) error {
	cfg := GetConfig()
	cfg.Allowlist.Ranges = append([]string(nil), ranges...)

	return applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, broadcast: true, source: "allowlist"})
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

// OnAllowlistChange registers fn to run after an update changes the
// configured ranges or sources. Hooks run outside the config lock.
func OnAllowlistChange(fn func(previous, current Config)) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	allowlistHooks = append(allowlistHooks, fn)
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	previous, err := storeConfig(newConfig, opts)

	current := GetConfig()
	if !slices.Equal(previous.Allowlist.Ranges, current.Allowlist.Ranges) ||
		!slices.Equal(previous.Allowlist.Sources, current.Allowlist.Sources) {
		hooksMu.Lock()
		hooks := slices.Clone(allowlistHooks)
		hooksMu.Unlock()

		for _, hook := range hooks {
			hook(previous, current)
		}
	}

	return err
}

func storeConfig(newConfig Config, opts configUpdateOptions) (Config, error) {
	configMu.Lock()
	defer configMu.Unlock()

	previous := GetConfig()
	configValue.Store(withDefaults(newConfig))
	SetBetweenTime()

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			log.Error("Error marshalling new configuration", "error", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath, data, 0o644); err != nil {
			log.Error("Error writing new configuration to file", "error", err)
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		if err := broadcastConfig(newConfig); err != nil {
			log.Error("Error broadcasting configuration update", "error", err)
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	} else {
		log.Debug("Configuration applied")
	}

	return previous, errors.Join(errs...)
}

func withDefaults(cfg Config) Config {
	if cfg.EventLog.Path == "" {
		cfg.EventLog.Path = DefaultEventLogPath
	}
	if cfg.EventLog.Timezone == "" {
		cfg.EventLog.Timezone = DefaultTimezone
	}
	if cfg.EventLog.DeniedSeverity == "" {
		cfg.EventLog.DeniedSeverity = DefaultDeniedSeverity
	}
	return cfg
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// GetAllowedRanges returns a copy of the configured range descriptors.
func GetAllowedRanges() []string {
	return append([]string(nil), GetConfig().Allowlist.Ranges...)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}

package geolite

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

var (
	countryDB *geoip2.Reader
	geoLiteMu sync.RWMutex
)

// Open loads a GeoLite2 country database, replacing any previously opened one.
// An empty path disables lookups.
func Open(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return Close()
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return fmt.Errorf("geolite: open %s: %w", path, err)
	}

	geoLiteMu.Lock()
	previous := countryDB
	countryDB = reader
	geoLiteMu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			log.Warn("geolite: closing previous database failed", "error", err)
		}
	}

	log.Info("GeoLite country database loaded", "path", path)
	return nil
}

// Close releases the current database. Lookups return "" afterwards.
func Close() error {
	geoLiteMu.Lock()
	defer geoLiteMu.Unlock()

	if countryDB == nil {
		return nil
	}
	err := countryDB.Close()
	countryDB = nil
	return err
}

// Enabled reports whether a country database is loaded.
func Enabled() bool {
	geoLiteMu.RLock()
	defer geoLiteMu.RUnlock()
	return countryDB != nil
}

var errNoDatabase = errors.New("geolite: no country database loaded")

// CountryISO returns the ISO code of the country ip is registered in.
func CountryISO(ip string) (string, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("geolite: invalid ip %q", ip)
	}

	geoLiteMu.RLock()
	defer geoLiteMu.RUnlock()

	if countryDB == nil {
		return "", errNoDatabase
	}

	record, err := countryDB.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geolite: lookup %s: %w", ip, err)
	}
	return record.Country.IsoCode, nil
}

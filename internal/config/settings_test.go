package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func useSettingsPath(t *testing.T, path string) {
	t.Helper()

	origPath := settingsFilePath
	origCfg := GetConfig()
	SetSettingsPath(path)

	t.Cleanup(func() {
		SetSettingsPath(origPath)
		configValue.Store(origCfg)
	})
}

func TestReadSettingsCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "settings.json")
	useSettingsPath(t, path)

	ReadSettings()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("settings file was not created: %v", err)
	}

	cfg := GetConfig()
	if len(cfg.Allowlist.Ranges) == 0 {
		t.Fatal("default configuration has no allowed ranges")
	}
	if cfg.EventLog.Path != DefaultEventLogPath {
		t.Fatalf("EventLog.Path = %q, want %q", cfg.EventLog.Path, DefaultEventLogPath)
	}
	if cfg.EventLog.Timezone != DefaultTimezone {
		t.Fatalf("EventLog.Timezone = %q, want %q", cfg.EventLog.Timezone, DefaultTimezone)
	}
}

func TestReadSettingsFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	useSettingsPath(t, path)

	if err := os.WriteFile(path, []byte(`{"allowlist":{"ranges":["8.8.8.0/24"]}}`), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	ReadSettings()

	if got := GetAllowedRanges(); !reflect.DeepEqual(got, []string{"8.8.8.0/24"}) {
		t.Fatalf("GetAllowedRanges = %v", got)
	}
	if got := GetConfig().EventLog.Path; got != DefaultEventLogPath {
		t.Fatalf("EventLog.Path = %q, want %q", got, DefaultEventLogPath)
	}
	if got := GetConfig().EventLog.DeniedSeverity; got != DefaultDeniedSeverity {
		t.Fatalf("EventLog.DeniedSeverity = %q, want %q", got, DefaultDeniedSeverity)
	}
}

func TestUpdateAllowlistPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	useSettingsPath(t, path)

	want := []string{"10.0.0.0/8", "1.2.3.*"}
	if err := UpdateAllowlist(want); err != nil {
		t.Fatalf("UpdateAllowlist returned error: %v", err)
	}

	if got := GetAllowedRanges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("GetAllowedRanges = %v, want %v", got, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted settings: %v", err)
	}
	var persisted Config
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("decode persisted settings: %v", err)
	}
	if !reflect.DeepEqual(persisted.Allowlist.Ranges, want) {
		t.Fatalf("persisted ranges = %v, want %v", persisted.Allowlist.Ranges, want)
	}
}

func TestGetAllowedRangesReturnsCopy(t *testing.T) {
	origCfg := GetConfig()
	t.Cleanup(func() { configValue.Store(origCfg) })

	cfg := Config{}
	cfg.Allowlist.Ranges = []string{"10.0.0.0/8"}
	configValue.Store(cfg)

	got := GetAllowedRanges()
	got[0] = "mutated"

	if GetConfig().Allowlist.Ranges[0] != "10.0.0.0/8" {
		t.Fatal("GetAllowedRanges exposed the stored slice")
	}
}

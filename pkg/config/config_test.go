package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittoca/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

server:
  port: 5064
  max_array_bytes: 4Mi

pvs:
  - name: TEMP1
    type: double
    value: 72.5
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Server.MaxArrayBytes != 4*bytesize.MiB {
		t.Errorf("Expected max_array_bytes 4Mi, got %s", cfg.Server.MaxArrayBytes)
	}
	if cfg.Server.BeaconPort != 5065 {
		t.Errorf("Expected default beacon port 5065, got %d", cfg.Server.BeaconPort)
	}
	if len(cfg.PVs) != 1 || cfg.PVs[0].Name != "TEMP1" {
		t.Errorf("Expected one PV TEMP1, got %+v", cfg.PVs)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config.
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Server.Port != 5064 {
		t.Errorf("Expected default server port 5064, got %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
pvs:
  - name: A
    type: quad
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown PV type")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[server]
beacon_period = "30s"

[autosave]
enabled = true
path = "`+yamlSafePath(t.TempDir())+`/autosave"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Server.BeaconPeriod != 30*time.Second {
		t.Errorf("Expected beacon period 30s, got %v", cfg.Server.BeaconPeriod)
	}
	if !cfg.Autosave.Enabled {
		t.Error("Expected autosave to be enabled")
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Autosave.Path == "" {
		t.Error("Expected a default autosave path")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	if dir := GetConfigDir(); filepath.Base(dir) != "dittoca" {
		t.Errorf("Expected directory name 'dittoca', got %q", filepath.Base(dir))
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOCA_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTOCA_API_PORT", "9090")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

api:
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("Expected port 9090 from env var, got %d", cfg.API.Port)
	}
}

func TestLoad_EPICSEnvironment(t *testing.T) {
	t.Setenv("EPICS_CAS_SERVER_PORT", "6064")
	t.Setenv("EPICS_CAS_BEACON_PORT", "6065")
	t.Setenv("EPICS_CAS_BEACON_PERIOD", "2.5")
	t.Setenv("EPICS_CAS_BEACON_ADDR_LIST", "10.0.0.255 10.1.0.255:7065")
	t.Setenv("EPICS_CAS_AUTO_BEACON_ADDR_LIST", "NO")
	t.Setenv("EPICS_CAS_IGNORE_ADDR_LIST", "192.168.1.5,192.168.1.6")
	t.Setenv("EPICS_CAS_INTF_ADDR_LIST", "127.0.0.1")
	t.Setenv("EPICS_CA_MAX_ARRAY_BYTES", "4000000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	s := cfg.Server
	if s.Port != 6064 || s.BeaconPort != 6065 {
		t.Errorf("Expected ports 6064/6065, got %d/%d", s.Port, s.BeaconPort)
	}
	if s.BeaconPeriod != 2500*time.Millisecond {
		t.Errorf("Expected beacon period 2.5s, got %v", s.BeaconPeriod)
	}
	if len(s.BeaconAddrs) != 2 || s.BeaconAddrs[1] != "10.1.0.255:7065" {
		t.Errorf("Unexpected beacon addresses %v", s.BeaconAddrs)
	}
	if s.IsAutoBeaconAddrs() {
		t.Error("Expected auto beacon addresses to be disabled")
	}
	if len(s.IgnoreAddrs) != 2 || s.IgnoreAddrs[0] != "192.168.1.5" {
		t.Errorf("Unexpected ignore addresses %v", s.IgnoreAddrs)
	}
	if s.BindAddress() != "127.0.0.1" {
		t.Errorf("Expected bind address 127.0.0.1, got %q", s.BindAddress())
	}
	if s.MaxArrayBytes != 4000000 {
		t.Errorf("Expected max array bytes 4000000, got %d", s.MaxArrayBytes)
	}
}

func TestLoad_DittoEnvBeatsEPICS(t *testing.T) {
	t.Setenv("EPICS_CAS_SERVER_PORT", "6064")
	t.Setenv("DITTOCA_SERVER_PORT", "7064")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != 7064 {
		t.Errorf("Expected DITTOCA_SERVER_PORT to win, got %d", cfg.Server.Port)
	}
}

func TestCASConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.InterfaceAddrs = []string{"127.0.0.1"}
	cfg.Server.BeaconAddrs = []string{"10.0.0.255"}
	off := false
	cfg.Server.AutoBeaconAddrs = &off

	c := cfg.CASConfig()
	if c.BindAddress != "127.0.0.1" || c.Port != 5064 {
		t.Errorf("Unexpected listener %s:%d", c.BindAddress, c.Port)
	}
	if c.AutoBeaconAddrs {
		t.Error("Expected auto beacon addresses to be off")
	}
	if c.ObserveBeacons {
		t.Error("Expected beacon observation to default off")
	}
	if c.MaxArrayBytes != int(bytesize.MiB) {
		t.Errorf("Expected max array bytes 1Mi, got %d", c.MaxArrayBytes)
	}
	if c.ShutdownTimeout != cfg.ShutdownTimeout {
		t.Errorf("Expected shutdown timeout %v, got %v", cfg.ShutdownTimeout, c.ShutdownTimeout)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.MaxArrayBytes = 2 * bytesize.MiB
	path := filepath.Join(t.TempDir(), "saved", "config.yaml")

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Server.MaxArrayBytes != 2*bytesize.MiB {
		t.Errorf("Expected max array bytes 2Mi, got %s", loaded.Server.MaxArrayBytes)
	}
	if loaded.Server.BeaconPeriod != cfg.Server.BeaconPeriod {
		t.Errorf("Expected beacon period %v, got %v", cfg.Server.BeaconPeriod, loaded.Server.BeaconPeriod)
	}
}

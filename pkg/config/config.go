package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittoca/internal/bytesize"
	"github.com/marmos91/dittoca/pkg/api"
	"github.com/marmos91/dittoca/pkg/softpv"
)

// Config represents the DittoCA configuration.
//
// It covers the process-wide concerns (logging, tracing, profiling,
// metrics, the status API) and the Channel Access server itself, plus the
// soft PVs the server hosts.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOCA_*, and the EPICS_CAS_* variables
//     listed in epicsEnv)
//  2. Configuration file (YAML or TOML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics controls Prometheus metrics collection. Metrics are served
	// by the API server on /metrics.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the status and health HTTP server
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Server configures the Channel Access server
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Autosave persists soft PV values across restarts
	Autosave AutosaveConfig `mapstructure:"autosave" yaml:"autosave"`

	// The soft PVs and their access file live at the top level
	// (pvs, access_file).
	softpv.Config `mapstructure:",squash" yaml:",inline"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, a span is recorded for every client request and exported
// to an OTLP collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS to the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// MetricsConfig controls Prometheus metrics. When Enabled is false, no
// metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ServerConfig configures the Channel Access server. Most fields can also
// be set with the classic EPICS environment variables.
type ServerConfig struct {
	// Port is the TCP port and UDP search port.
	// EPICS_CAS_SERVER_PORT. Default: 5064
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// BeaconPort is the destination port of broadcast beacons.
	// EPICS_CAS_BEACON_PORT. Default: 5065
	BeaconPort int `mapstructure:"beacon_port" validate:"omitempty,min=1,max=65535" yaml:"beacon_port"`

	// InterfaceAddrs restricts the server to one interface address. Only
	// the first entry is used; empty means all interfaces.
	// EPICS_CAS_INTF_ADDR_LIST
	InterfaceAddrs []string `mapstructure:"intf_addrs" validate:"max=1,dive,ip" yaml:"intf_addrs,omitempty"`

	// ServerAddr is the address advertised in beacons. Empty lets clients
	// use the datagram source address.
	ServerAddr string `mapstructure:"server_addr" validate:"omitempty,ip" yaml:"server_addr,omitempty"`

	// BeaconAddrs are explicit beacon destinations ("host" or "host:port").
	// EPICS_CAS_BEACON_ADDR_LIST
	BeaconAddrs []string `mapstructure:"beacon_addrs" validate:"dive,required" yaml:"beacon_addrs,omitempty"`

	// AutoBeaconAddrs adds the broadcast address of every interface.
	// EPICS_CAS_AUTO_BEACON_ADDR_LIST (YES/NO). Default: true
	AutoBeaconAddrs *bool `mapstructure:"auto_beacon_addrs" yaml:"auto_beacon_addrs"`

	// ObserveBeacons also listens on BeaconPort for other servers'
	// beacons, sharing the port with a CA repeater. Default: false
	ObserveBeacons bool `mapstructure:"observe_beacons" yaml:"observe_beacons"`

	// IgnoreAddrs lists client addresses whose datagrams are dropped.
	// EPICS_CAS_IGNORE_ADDR_LIST
	IgnoreAddrs []string `mapstructure:"ignore_addrs" validate:"dive,ip" yaml:"ignore_addrs,omitempty"`

	// BeaconMinPeriod is the beacon period right after startup or an
	// anomaly. Default: 20ms
	BeaconMinPeriod time.Duration `mapstructure:"beacon_min_period" validate:"gte=0" yaml:"beacon_min_period"`

	// BeaconPeriod is the steady state beacon period. Plain numbers are
	// seconds, as in EPICS. EPICS_CAS_BEACON_PERIOD. Default: 15s
	BeaconPeriod time.Duration `mapstructure:"beacon_period" validate:"gtefield=BeaconMinPeriod" yaml:"beacon_period"`

	// AnomalyInterval is the minimum spacing of beacon anomalies.
	AnomalyInterval time.Duration `mapstructure:"anomaly_interval" yaml:"anomaly_interval"`

	// InterfaceCheck is how often interface broadcast addresses are
	// rescanned. Zero disables rescanning.
	InterfaceCheck time.Duration `mapstructure:"interface_check" yaml:"interface_check"`

	// BufferSize is the size of one stream buffer.
	BufferSize bytesize.ByteSize `mapstructure:"buffer_size" yaml:"buffer_size"`

	// MaxArrayBytes bounds a single message, in either direction.
	// EPICS_CA_MAX_ARRAY_BYTES. Default: 1Mi
	MaxArrayBytes bytesize.ByteSize `mapstructure:"max_array_bytes" yaml:"max_array_bytes"`

	// MaxEventQueue is the number of messages a client may have waiting
	// behind a full output buffer before it is disconnected.
	MaxEventQueue int `mapstructure:"max_event_queue" validate:"gte=0" yaml:"max_event_queue"`

	// MaxConnections limits concurrent TCP clients. Zero is unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// StallTimeout reports async operations pending longer than this.
	// Zero disables the check.
	StallTimeout time.Duration `mapstructure:"stall_timeout" validate:"gte=0" yaml:"stall_timeout"`

	// MinMinorVersion rejects clients speaking an older protocol minor
	// version.
	MinMinorVersion uint16 `mapstructure:"min_minor_version" validate:"lte=13" yaml:"min_minor_version"`

	// MetricsLogInterval periodically logs server statistics. Zero
	// disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval"`
}

// IsAutoBeaconAddrs returns whether interface broadcast addresses get
// beacons. Defaults to true if not explicitly set.
func (c *ServerConfig) IsAutoBeaconAddrs() bool {
	if c.AutoBeaconAddrs == nil {
		return true
	}
	return *c.AutoBeaconAddrs
}

// BindAddress is the address the listeners bind to.
func (c *ServerConfig) BindAddress() string {
	if len(c.InterfaceAddrs) == 0 {
		return ""
	}
	return c.InterfaceAddrs[0]
}

// AutosaveConfig configures soft PV persistence.
type AutosaveConfig struct {
	// Enabled opens the autosave store. PVs opt in with autosave: true.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the badger database directory.
	Path string `mapstructure:"path" validate:"required_if=Enabled true" yaml:"path"`

	// SyncWrites fsyncs every save.
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`

	// GCInterval is how often the value log is garbage collected.
	// Default: 10m
	GCInterval time.Duration `mapstructure:"gc_interval" validate:"gte=0" yaml:"gc_interval"`
}

// epicsEnv binds the EPICS environment variables onto config keys. The
// DITTOCA_ variable for the same key takes precedence.
var epicsEnv = map[string]string{
	"server.port":              "EPICS_CAS_SERVER_PORT",
	"server.beacon_port":       "EPICS_CAS_BEACON_PORT",
	"server.beacon_period":     "EPICS_CAS_BEACON_PERIOD",
	"server.intf_addrs":        "EPICS_CAS_INTF_ADDR_LIST",
	"server.beacon_addrs":      "EPICS_CAS_BEACON_ADDR_LIST",
	"server.auto_beacon_addrs": "EPICS_CAS_AUTO_BEACON_ADDR_LIST",
	"server.ignore_addrs":      "EPICS_CAS_IGNORE_ADDR_LIST",
	"server.max_array_bytes":   "EPICS_CA_MAX_ARRAY_BYTES",
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	// A missing file is fine: environment variables and defaults still apply
	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittoca init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittoca <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittoca init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) error {
	// Environment variables use DITTOCA_ prefix and underscores
	// Example: DITTOCA_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, epics := range epicsEnv {
		own := "DITTOCA_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, own, epics); err != nil {
			return fmt.Errorf("failed to bind %s: %w", epics, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittoca/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		addrListDecodeHook(),
		epicsBoolDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize,
// so config files can use sizes like "1Mi", "16Ki" or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			if v < 0 {
				return nil, fmt.Errorf("negative byte size %d", v)
			}
			return bytesize.ByteSize(v), nil
		case int64:
			if v < 0 {
				return nil, fmt.Errorf("negative byte size %d", v)
			}
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			if v < 0 {
				return nil, fmt.Errorf("negative byte size %g", v)
			}
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration. A bare number is
// seconds, the unit EPICS uses for its periods.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return time.Duration(secs * float64(time.Second)), nil
			}
			return time.ParseDuration(v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

// addrListDecodeHook splits an address list string, such as the value of
// EPICS_CAS_BEACON_ADDR_LIST, on blanks and commas.
func addrListDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		s, ok := data.(string)
		if !ok || to != reflect.TypeOf([]string(nil)) {
			return data, nil
		}
		return strings.FieldsFunc(s, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		}), nil
	}
}

// epicsBoolDecodeHook accepts YES and NO for booleans.
func epicsBoolDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		s, ok := data.(string)
		if !ok || to.Kind() != reflect.Bool {
			return data, nil
		}
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "YES", "Y":
			return true, nil
		case "NO", "N":
			return false, nil
		}
		return strconv.ParseBool(s)
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittoca")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittoca")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is written by 'dittoca init'. It documents the common
// settings and declares a few soft PVs to try with caget/camonitor.
const sampleConfig = `# DittoCA Configuration File
#
# Environment variables override this file: DITTOCA_<SECTION>_<KEY>, e.g.
# DITTOCA_LOGGING_LEVEL=DEBUG. The EPICS variables EPICS_CAS_SERVER_PORT,
# EPICS_CAS_BEACON_PORT, EPICS_CAS_BEACON_PERIOD, EPICS_CAS_INTF_ADDR_LIST,
# EPICS_CAS_BEACON_ADDR_LIST, EPICS_CAS_AUTO_BEACON_ADDR_LIST,
# EPICS_CAS_IGNORE_ADDR_LIST and EPICS_CA_MAX_ARRAY_BYTES are honored too.

logging:
  level: INFO        # DEBUG, INFO, WARN, ERROR
  format: text       # text, json
  output: stdout     # stdout, stderr or a file path

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: http://localhost:4040

shutdown_timeout: 30s

metrics:
  enabled: false     # served on the API server at /metrics

api:
  enabled: true
  port: 8080

server:
  port: 5064
  beacon_port: 5065
  auto_beacon_addrs: true
  observe_beacons: false
  beacon_addrs: []
  ignore_addrs: []
  beacon_min_period: 20ms
  beacon_period: 15s
  buffer_size: 16Ki
  max_array_bytes: 1Mi
  max_event_queue: 1024
  stall_timeout: 30s

autosave:
  enabled: false
  path: /tmp/dittoca-autosave
  sync_writes: false

# access_file: /etc/dittoca/access.yaml

pvs:
  - name: TEMP1
    type: double
    value: 72.5
    units: degF
    precision: 1
    limits:
      display_low: 0
      display_high: 150
      low: 40
      high: 90
      lolo: 20
      hihi: 110
  - name: SETPOINT
    type: double
    value: 70
    units: degF
    precision: 1
    autosave: true
    limits:
      control_low: 50
      control_high: 90
  - name: MODE
    type: enum
    enum_strings: ["OFF", "HEAT", "COOL"]
    value: "OFF"
  - name: WAVEFORM
    type: double
    count: 16
  - name: SLOW
    type: long
    value: 0
    async_delay: 500ms
  - name: LABEL
    type: string
    value: dittoca
    access: ro
`

// InitConfig writes the sample configuration to the default location and
// returns its path. It refuses to overwrite an existing file unless force
// is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the sample configuration to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

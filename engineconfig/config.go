// Package engineconfig loads the engine's startup configuration: which
// backend to open, the client name it registers under, the read-ahead
// window, and the bus layout to create at startup, before Activate.
package engineconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackendKind selects which concrete backend.Backend implementation
// OpenBackend constructs.
type BackendKind string

const (
	BackendRTMidi BackendKind = "rtmidi"
	BackendSerial BackendKind = "serial"
)

// BusConfig describes one bus to create on startup.
type BusConfig struct {
	Name    string `yaml:"name"`
	Read    bool   `yaml:"read"`
	Write   bool   `yaml:"write"`
	Control bool   `yaml:"control"`
}

// Config is the engine's startup configuration, decoded once at
// process start and never reloaded.
type Config struct {
	Backend         BackendKind `yaml:"backend"`
	ClientName      string      `yaml:"client_name"`
	SerialPort      string      `yaml:"serial_port"`
	SerialBaud      int         `yaml:"serial_baud"`
	ReadAheadFrames uint64      `yaml:"read_ahead_frames"`
	Buses           []BusConfig `yaml:"buses"`
}

// Load reads and decodes a Config from filename.
func Load(filename string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("engineconfig: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("engineconfig: %w", err)
	}
	if cfg.ReadAheadFrames == 0 {
		cfg.ReadAheadFrames = 4096
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "qtractor-midi"
	}
	return cfg, nil
}

// Package config loads the controller's board configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the board configuration. Zero fields take their defaults on Load.
type Config struct {
	Bus      BusConfig     `yaml:"bus"`
	Fan      FanConfig     `yaml:"fan"`
	Watchdog time.Duration `yaml:"watchdog"`
	Pins     PinsConfig    `yaml:"pins"`
	Serial   SerialConfig  `yaml:"serial"`
	Sim      SimConfig     `yaml:"sim"`
	Link     LinkConfig    `yaml:"link"`
	API      APIConfig     `yaml:"api"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Log      LogConfig     `yaml:"log"`
	Firmware string        `yaml:"firmware"` // version reported on the register map; empty uses the build's
}

// BusConfig selects the internal bus and its recovery lines.
type BusConfig struct {
	Name       string        `yaml:"name"` // i2creg name; empty picks the first bus
	SCL        string        `yaml:"scl"`  // gpioreg names of the lines used for recovery
	SDA        string        `yaml:"sda"`
	HalfPeriod time.Duration `yaml:"half_period"`
}

// Thresholds are one sensor group's fan thresholds in °C.
type Thresholds struct {
	Off  float64 `yaml:"off"`
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
	Warn float64 `yaml:"warn"`
}

func (t Thresholds) isZero() bool { return t == Thresholds{} }

// FanConfig holds the thermal controller tunables.
type FanConfig struct {
	Amp           Thresholds `yaml:"amp"`
	PSU           Thresholds `yaml:"psu"`
	Pi            Thresholds `yaml:"pi"`
	MinDuty       float64    `yaml:"min_duty"`        // 0..1
	VoltsFracBits uint       `yaml:"volts_frac_bits"` // FAN_VOLTS format: 3 (UQ4.3) or 4 (UQ4.4)
}

// PinsConfig names the expansion connector outputs. Empty names are unused.
type PinsConfig struct {
	NRST  string `yaml:"nrst"`
	Boot0 string `yaml:"boot0"`
	UART  string `yaml:"uart_passthrough"`
}

// SerialConfig names the address assignment UARTs.
type SerialConfig struct {
	Upstream   string `yaml:"upstream"`   // frames from the host or the unit above
	Downstream string `yaml:"downstream"` // frames to the next unit; empty for the last unit
}

// SimConfig runs the controller against a simulated board.
type SimConfig struct {
	Enabled bool   `yaml:"enabled"`
	ADC     string `yaml:"adc"` // "4", "6a", "6b" or "none"
	Pot     string `yaml:"pot"` // "a", "b" or "none"
	EEPROM  bool   `yaml:"eeprom"`
	Addr    uint8  `yaml:"addr"` // address assumed at start, 0 to wait for a frame
}

// LinkConfig exposes the register map to the host over a framed byte stream.
type LinkConfig struct {
	Listen string `yaml:"listen"` // TCP listen address, or "off"
	Serial string `yaml:"serial"` // UART device; empty leaves it unused
	Baud   int    `yaml:"baud"`
}

// LinkOff disables the TCP link listener.
const LinkOff = "off"

// APIConfig is the debug HTTP surface.
type APIConfig struct {
	Addr string `yaml:"addr"` // empty disables it
	Keys string `yaml:"keys"` // access key file guarding writes; empty leaves them open
	MDNS bool   `yaml:"mdns"` // advertise over DNS-SD
}

// MQTTConfig exports state snapshots to a broker.
type MQTTConfig struct {
	Broker    string `yaml:"broker"` // e.g. tcp://localhost:1883; empty disables export
	Topic     string `yaml:"topic"`  // topic prefix
	ClientID  string `yaml:"client_id"`
	Heartbeat string `yaml:"heartbeat"` // cron spec for periodic republish, e.g. "@every 1m"
}

// LogConfig configures logging and rotation.
type LogConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`  // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads path. A missing file yields the defaults. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("config: no config file, using defaults", "path", path)
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

package config

import (
	"log/slog"
	"time"
)

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Bus: BusConfig{HalfPeriod: 5 * time.Microsecond},
		Fan: FanConfig{
			Amp:           Thresholds{Off: 40, Low: 45, High: 60, Warn: 80},
			PSU:           Thresholds{Off: 40, Low: 50, High: 65, Warn: 85},
			Pi:            Thresholds{Off: 55, Low: 60, High: 75, Warn: 85},
			MinDuty:       40.0 / 128,
			VoltsFracBits: 4,
		},
		Watchdog: 32 * time.Millisecond,
		Serial:   SerialConfig{Upstream: "/dev/serial0"},
		Link:     LinkConfig{Listen: ":5020", Baud: 115200},
		Sim:      SimConfig{ADC: "6a", Pot: "a"},
		MQTT:     MQTTConfig{Topic: "amplipi/preamp", ClientID: "amplipi-preamp"},
		Log:      LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// applyDefaults fills every unset field from Default. Threshold groups are
// taken whole: a partially written group is left for Validate to reject.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Bus.HalfPeriod == 0 {
		cfg.Bus.HalfPeriod = def.Bus.HalfPeriod
	}
	for _, g := range []struct {
		name string
		dst  *Thresholds
		def  Thresholds
	}{
		{"amp", &cfg.Fan.Amp, def.Fan.Amp},
		{"psu", &cfg.Fan.PSU, def.Fan.PSU},
		{"pi", &cfg.Fan.Pi, def.Fan.Pi},
	} {
		if g.dst.isZero() {
			*g.dst = g.def
		} else {
			slog.Debug("config: custom fan thresholds", "group", g.name, "thresholds", *g.dst)
		}
	}
	if cfg.Fan.MinDuty == 0 {
		cfg.Fan.MinDuty = def.Fan.MinDuty
	}
	if cfg.Fan.VoltsFracBits == 0 {
		cfg.Fan.VoltsFracBits = def.Fan.VoltsFracBits
	}
	if cfg.Watchdog == 0 {
		cfg.Watchdog = def.Watchdog
	}
	if cfg.Serial.Upstream == "" {
		cfg.Serial.Upstream = def.Serial.Upstream
	}
	if cfg.Link.Listen == "" {
		cfg.Link.Listen = def.Link.Listen
	}
	if cfg.Link.Baud == 0 {
		cfg.Link.Baud = def.Link.Baud
	}
	if cfg.Sim.ADC == "" {
		cfg.Sim.ADC = def.Sim.ADC
	}
	if cfg.Sim.Pot == "" {
		cfg.Sim.Pot = def.Sim.Pot
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = def.MQTT.Topic
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = def.MQTT.ClientID
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = def.Log.MaxBackups
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = def.Log.MaxAgeDays
	}
}

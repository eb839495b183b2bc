package config

import (
	"fmt"
	"net"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/micro-nova/amplipi-preamp/internal/fan"
	"github.com/micro-nova/amplipi-preamp/internal/fixed"
	"github.com/micro-nova/amplipi-preamp/internal/identity"
	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/preamp"
)

// Validate checks cfg. It does not modify it.
func Validate(cfg *Config) error {
	if err := cfg.FanConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Fan.MinDuty < 0 || cfg.Fan.MinDuty > 1 {
		return fmt.Errorf("config: fan.min_duty %v outside [0, 1]", cfg.Fan.MinDuty)
	}
	if b := cfg.Fan.VoltsFracBits; b != 3 && b != 4 {
		return fmt.Errorf("config: fan.volts_frac_bits must be 3 or 4, got %d", b)
	}
	if cfg.Watchdog < 2*preamp.TickPeriod {
		return fmt.Errorf("config: watchdog %v shorter than two ticks", cfg.Watchdog)
	}
	if cfg.Bus.HalfPeriod < 0 || cfg.Bus.HalfPeriod > time.Millisecond {
		return fmt.Errorf("config: bus.half_period %v outside [0, 1ms]", cfg.Bus.HalfPeriod)
	}
	if (cfg.Bus.SCL == "") != (cfg.Bus.SDA == "") {
		return fmt.Errorf("config: bus.scl and bus.sda must be set together")
	}
	switch cfg.Sim.ADC {
	case "4", "6a", "6b", "none":
	default:
		return fmt.Errorf("config: sim.adc %q: want 4, 6a, 6b or none", cfg.Sim.ADC)
	}
	switch cfg.Sim.Pot {
	case "a", "b", "none":
	default:
		return fmt.Errorf("config: sim.pot %q: want a, b or none", cfg.Sim.Pot)
	}
	if cfg.Sim.Addr&1 != 0 {
		return fmt.Errorf("config: sim.addr 0x%02x is not an 8-bit write address", cfg.Sim.Addr)
	}
	if cfg.Link.Listen != LinkOff {
		if _, _, err := net.SplitHostPort(cfg.Link.Listen); err != nil {
			return fmt.Errorf("config: link.listen: %w", err)
		}
	}
	if cfg.Link.Baud <= 0 {
		return fmt.Errorf("config: link.baud %d", cfg.Link.Baud)
	}
	if !cfg.Sim.Enabled && cfg.Link.Listen == LinkOff && cfg.Link.Serial == "" && cfg.API.Addr == "" {
		return fmt.Errorf("config: register map unreachable: set link.listen, link.serial or api.addr")
	}
	if cfg.API.MDNS && cfg.API.Addr == "" {
		return fmt.Errorf("config: api.mdns needs api.addr")
	}
	if cfg.MQTT.Heartbeat != "" {
		if _, err := cron.ParseStandard(cfg.MQTT.Heartbeat); err != nil {
			return fmt.Errorf("config: mqtt.heartbeat: %w", err)
		}
	}
	if cfg.Firmware != "" {
		if _, err := identity.ParseVersion(cfg.Firmware); err != nil {
			return fmt.Errorf("config: firmware: %w", err)
		}
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q", cfg.Log.Level)
	}
	return nil
}

// FanConfig converts the fan section for the controller.
func (c *Config) FanConfig() fan.Config {
	conv := func(t Thresholds) fan.Thresholds {
		return fan.Thresholds{
			Off:  fixed.Temp16FromCelsius(t.Off),
			Low:  fixed.Temp16FromCelsius(t.Low),
			High: fixed.Temp16FromCelsius(t.High),
			Warn: fixed.Temp16FromCelsius(t.Warn),
		}
	}
	return fan.Config{
		Zones: fan.Zones{
			Amp: conv(c.Fan.Amp),
			PSU: conv(c.Fan.PSU),
			Pi:  conv(c.Fan.Pi),
		},
		MinDuty: fixed.DutyFromFloat(c.Fan.MinDuty),
	}
}

// Scheduler returns the scheduler configuration.
func (c *Config) Scheduler() preamp.Config {
	return preamp.Config{
		Fan:              c.FanConfig(),
		FanVoltsFracBits: c.Fan.VoltsFracBits,
		WatchdogTimeout:  c.Watchdog,
	}
}

// Version returns the firmware version to report: the configured one, or the
// build's.
func (c *Config) Version() models.Version {
	if c.Firmware != "" {
		if v, err := identity.ParseVersion(c.Firmware); err == nil {
			return v
		}
	}
	return identity.Firmware()
}

// Package fan is the thermal control loop. Each update picks a control mode
// from what discovery found, turns the temperatures into a fan percentage and
// maps that onto whichever actuator the mode drives: a PWM duty, a
// potentiometer code on the fan supply, or nothing at all when a hardware fan
// controller is in charge.
package fan

import (
	"fmt"

	"github.com/micro-nova/amplipi-preamp/internal/fixed"
)

// Mode is the fan control strategy, in its register encoding.
type Mode uint8

const (
	HardwareAuto Mode = iota
	PWM
	Linear
	Forced
)

func (m Mode) String() string {
	switch m {
	case HardwareAuto:
		return "hardware-auto"
	case PWM:
		return "pwm"
	case Linear:
		return "linear"
	case Forced:
		return "forced"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// SelectMode applies the mode precedence Forced > Linear > PWM > HardwareAuto.
func SelectMode(forced, potPresent, ampSensor bool) Mode {
	switch {
	case forced:
		return Forced
	case potPresent:
		return Linear
	case ampSensor:
		return PWM
	default:
		return HardwareAuto
	}
}

// Region is where the hottest zone sits relative to its thresholds.
type Region uint8

const (
	RegionOff  Region = iota // every zone at or below its off threshold
	RegionHold               // deadband between off and low
	RegionRamp               // some zone above its low threshold
)

func (r Region) String() string {
	switch r {
	case RegionOff:
		return "off"
	case RegionHold:
		return "hold"
	default:
		return "ramp"
	}
}

// Thresholds are one zone's temperature limits.
type Thresholds struct {
	Off  fixed.Temp16
	Low  fixed.Temp16 // fan starts ramping above this
	High fixed.Temp16 // fan at 100 % from here
	Warn fixed.Temp16 // over-temperature warning above this
}

// Validate checks Off <= Low < High < Warn.
func (t Thresholds) Validate() error {
	if t.Off > t.Low || t.Low >= t.High || t.High >= t.Warn {
		return fmt.Errorf("fan: thresholds must satisfy off <= low < high < warn, got %.1f/%.1f/%.1f/%.1f °C",
			t.Off.Celsius(), t.Low.Celsius(), t.High.Celsius(), t.Warn.Celsius())
	}
	return nil
}

// Zones groups the thresholds of the three monitored zones.
type Zones struct {
	Amp Thresholds
	PSU Thresholds
	Pi  Thresholds
}

// Validate checks every zone.
func (z Zones) Validate() error {
	for _, zone := range []struct {
		name string
		th   Thresholds
	}{{"amp", z.Amp}, {"psu", z.PSU}, {"pi", z.Pi}} {
		if err := zone.th.Validate(); err != nil {
			return fmt.Errorf("%s: %w", zone.name, err)
		}
	}
	return nil
}

func celsius(c float64) fixed.Temp16 { return fixed.Temp16FromCelsius(c) }

// DefaultZones returns the stock thresholds.
func DefaultZones() Zones {
	return Zones{
		Amp: Thresholds{Off: celsius(40), Low: celsius(45), High: celsius(60), Warn: celsius(80)},
		PSU: Thresholds{Off: celsius(40), Low: celsius(50), High: celsius(65), Warn: celsius(85)},
		Pi:  Thresholds{Off: celsius(55), Low: celsius(60), High: celsius(75), Warn: celsius(85)},
	}
}

// Percent maps t onto 0..100 % between th.Low and th.High, saturating.
func Percent(t fixed.Temp16, th Thresholds) fixed.Duty {
	if t <= th.Low {
		return 0
	}
	if t >= th.High {
		return fixed.DutyMax
	}
	num := (int32(t) - int32(th.Low)) * int32(fixed.DutyMax)
	den := int32(th.High) - int32(th.Low)
	return fixed.Duty((num + den/2) / den)
}

package fan

import (
	"fmt"
	"math"

	"github.com/micro-nova/amplipi-preamp/internal/fixed"
)

// Fan supply transfer function: V = linearK/(Rpot + linearROffset) + linearVBase,
// with the wiper code scaling Rpot linearly from 0 to potFullOhms.
const (
	linearK       = 15000.0
	linearROffset = 2000.0
	linearVBase   = 4.5
	potFullOhms   = 10000.0

	// MaxVoltsCode and MinVoltsCode are the potentiometer extremes.
	MaxVoltsCode = 0
	MinVoltsCode = 127
)

// PWMPeriodMs is the software PWM period.
const PWMPeriodMs = 32

// Config holds the controller's tunables.
type Config struct {
	Zones   Zones
	MinDuty fixed.Duty // lowest duty that keeps the fans spinning
}

// DefaultConfig returns the stock controller configuration.
func DefaultConfig() Config {
	return Config{Zones: DefaultZones(), MinDuty: 40}
}

// Validate checks the thresholds and the duty floor.
func (c Config) Validate() error {
	if err := c.Zones.Validate(); err != nil {
		return err
	}
	if c.MinDuty > fixed.DutyMax {
		return fmt.Errorf("fan: min duty %d exceeds %d", c.MinDuty, fixed.DutyMax)
	}
	return nil
}

// Inputs is one control cycle's view of the board. Temperatures are register
// bytes; disconnected and shorted sensors are ignored.
type Inputs struct {
	Forced     bool
	PotPresent bool
	Amp1, Amp2 fixed.Temp8
	HV1, HV2   fixed.Temp8
	Pi         fixed.Temp8
}

// AmpSensor reports whether either amplifier heatsink sensor reads valid.
func (in Inputs) AmpSensor() bool {
	return in.Amp1.Valid() || in.Amp2.Valid()
}

// Output is the controller's decision for one cycle.
type Output struct {
	Mode     Mode
	Region   Region
	Percent  fixed.Duty
	Duty     fixed.Duty
	PotCode  uint8
	OverTemp bool
}

// On reports whether the fan-on output should be asserted at time ms.
func (o Output) On(ms uint32) bool {
	switch o.Mode {
	case PWM:
		return PWMOn(ms, o.Duty)
	case Linear:
		return o.Region != RegionOff
	case Forced:
		return true
	default:
		return false
	}
}

// Controller carries the previous duty between updates.
type Controller struct {
	cfg  Config
	prev fixed.Duty
}

// NewController returns a controller with the fan stopped.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Update runs one control cycle.
func (c *Controller) Update(in Inputs) Output {
	zones := []reading{
		zone(in.Amp1, in.Amp2, c.cfg.Zones.Amp),
		zone(in.HV1, in.HV2, c.cfg.Zones.PSU),
		zone(in.Pi, fixed.TempDisconnected, c.cfg.Zones.Pi),
	}

	out := Output{Mode: SelectMode(in.Forced, in.PotPresent, in.AmpSensor())}
	off := true
	ramp := false
	for _, z := range zones {
		if !z.ok {
			continue
		}
		if p := Percent(z.t, z.th); p > out.Percent {
			out.Percent = p
		}
		if z.t > z.th.Off {
			off = false
		}
		if z.t > z.th.Low {
			ramp = true
		}
		if z.t > z.th.Warn {
			out.OverTemp = true
		}
	}
	switch {
	case ramp:
		out.Region = RegionRamp
	case off:
		out.Region = RegionOff
	default:
		out.Region = RegionHold
	}

	switch out.Mode {
	case Forced:
		out.PotCode = MaxVoltsCode
		out.Duty = fixed.DutyMax
	case Linear:
		out.PotCode = MinVoltsCode
		if out.Region == RegionRamp {
			out.PotCode = CodeFromPercent(out.Percent)
		}
	case PWM:
		out.PotCode = MaxVoltsCode
		switch out.Region {
		case RegionRamp:
			out.Duty = scaleDuty(out.Percent, c.cfg.MinDuty)
		case RegionHold:
			out.Duty = min(c.prev, c.cfg.MinDuty)
		}
	default:
		out.PotCode = MaxVoltsCode
	}
	c.prev = out.Duty
	return out
}

// reading is a zone's hottest valid temperature.
type reading struct {
	t  fixed.Temp16
	ok bool
	th Thresholds
}

func zone(a, b fixed.Temp8, th Thresholds) reading {
	z := reading{th: th}
	for _, r := range []fixed.Temp8{a, b} {
		if !r.Valid() {
			continue
		}
		if t := r.Q78(); !z.ok || t > z.t {
			z.t = t
		}
		z.ok = true
	}
	return z
}

// scaleDuty maps pct onto [floor, 100 %]: duty = pct*(1-floor) + floor.
func scaleDuty(pct, floor fixed.Duty) fixed.Duty {
	span := uint32(fixed.DutyMax - floor)
	return floor + fixed.Duty((uint32(pct)*span+uint32(fixed.DutyMax)/2)/uint32(fixed.DutyMax))
}

// PWMOn is the software PWM time slice: on while ms mod period is below
// period*duty. Unsigned modulo keeps it continuous across counter wrap.
func PWMOn(ms uint32, duty fixed.Duty) bool {
	return ms%PWMPeriodMs < uint32(duty)*PWMPeriodMs/uint32(fixed.DutyMax)
}

// VoltsFromCode returns the fan supply voltage for a wiper code.
func VoltsFromCode(code uint8) float64 {
	if code > MinVoltsCode {
		code = MinVoltsCode
	}
	r := float64(code) / MinVoltsCode * potFullOhms
	return linearK/(r+linearROffset) + linearVBase
}

// CodeFromVolts inverts VoltsFromCode, clamping to the supply range.
func CodeFromVolts(v float64) uint8 {
	vmin, vmax := VoltsFromCode(MinVoltsCode), VoltsFromCode(MaxVoltsCode)
	v = math.Max(vmin, math.Min(vmax, v))
	r := linearK/(v-linearVBase) - linearROffset
	code := math.Round(r / potFullOhms * MinVoltsCode)
	return uint8(math.Max(MaxVoltsCode, math.Min(MinVoltsCode, code)))
}

// CodeFromPercent places pct linearly between the minimum and maximum supply
// voltage and returns the wiper code for it.
func CodeFromPercent(pct fixed.Duty) uint8 {
	vmin, vmax := VoltsFromCode(MinVoltsCode), VoltsFromCode(MaxVoltsCode)
	return CodeFromVolts(vmin + pct.Float()*(vmax-vmin))
}

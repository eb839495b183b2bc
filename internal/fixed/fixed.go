// Package fixed implements the fixed-point formats exchanged on the preamp's
// buses and register map. Every conversion saturates at the edge of the
// representable range; nothing wraps.
package fixed

import "math"

// Volts is a rail voltage in UQ6.2 (0.25 V resolution, 0..63.75 V).
type Volts uint8

// VoltsFromFloat encodes v volts, saturating at both ends.
func VoltsFromFloat(v float64) Volts {
	return Volts(clamp(math.Round(v*4), 0, math.MaxUint8))
}

// Float returns the voltage in volts.
func (v Volts) Float() float64 {
	return float64(v) / 4
}

// Temp8 is a temperature in the register format UQ7.1 with a +20 °C offset:
// byte = (°C - 20) * 2. 0x00 and 0xFF are reserved sentinels.
type Temp8 uint8

const (
	TempDisconnected Temp8 = 0x00
	TempShorted      Temp8 = 0xFF
	tempMaxValid     Temp8 = 0xFE
)

// Temp8FromCelsius encodes c. Temperatures at or below 20 °C saturate to 0x00,
// which reads back as disconnected; hot values stop at 0xFE so they are never
// mistaken for a short.
func Temp8FromCelsius(c float64) Temp8 {
	return Temp8(clamp(math.Round((c-20)*2), 0, float64(tempMaxValid)))
}

// Valid reports whether t is a real reading rather than a sentinel.
func (t Temp8) Valid() bool {
	return t != TempDisconnected && t != TempShorted
}

// Celsius decodes t. Sentinels decode to their nominal value; call Valid first.
func (t Temp8) Celsius() float64 {
	return float64(t)/2 + 20
}

// Q78 converts t to the high-resolution controller format. The conversion is
// the affine map °C*256 = t*128 + 20*256, saturated to the Q7.8 range.
func (t Temp8) Q78() Temp16 {
	v := int32(t)*128 + 20*256
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	return Temp16(v)
}

// Temp16 is a temperature in signed Q7.8 °C with no offset.
type Temp16 int16

// Temp16FromCelsius encodes c, saturating to the Q7.8 range.
func Temp16FromCelsius(c float64) Temp16 {
	return Temp16(clamp(math.Round(c*256), math.MinInt16, math.MaxInt16))
}

// Celsius decodes t.
func (t Temp16) Celsius() float64 {
	return float64(t) / 256
}

// Duty is a fraction in UQ1.7: 0..128 maps to 0..1 in 1/128 steps.
type Duty uint8

// DutyMax is 100 %.
const DutyMax Duty = 128

// DutyFromFloat encodes f (0..1), saturating.
func DutyFromFloat(f float64) Duty {
	return Duty(clamp(math.Round(f*float64(DutyMax)), 0, float64(DutyMax)))
}

// Float returns the fraction as 0..1.
func (d Duty) Float() float64 {
	return float64(d) / float64(DutyMax)
}

// FanVolts encodes a fan supply voltage with 4 integer bits and fracBits
// fractional bits (3 or 4 depending on the power board), saturating.
func FanVolts(v float64, fracBits uint) uint8 {
	return uint8(clamp(math.Round(v*float64(uint(1)<<fracBits)), 0, math.MaxUint8))
}

// FanVoltsFloat decodes a FanVolts byte.
func FanVoltsFloat(b uint8, fracBits uint) float64 {
	return float64(b) / float64(uint(1)<<fracBits)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

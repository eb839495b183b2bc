package devices

import (
	"fmt"
	"log/slog"
)

// ADCVariant identifies one of the pin-compatible power-board ADCs.
type ADCVariant uint8

const (
	Variant4  ADCVariant = iota // 4 channels, low-power boards
	Variant6A                   // 6 channels, second rail
	Variant6B                   // 6 channels, alternate part
	numVariants
)

// Setup and configuration bytes: internal reference, external clock, unipolar,
// scan from AIN0 up to the last channel.
const (
	adcSetup   = 0xD2
	adcConfig4 = 0x07
	adcConfig6 = 0x0B
	adcAddr4   = 0x64
	adcAddr6A  = 0x65
	adcAddr6B  = 0x6A
)

func (v ADCVariant) String() string {
	switch v {
	case Variant4:
		return "adc4"
	case Variant6A:
		return "adc6a"
	case Variant6B:
		return "adc6b"
	default:
		return "unknown"
	}
}

// Addr returns the variant's 7-bit bus address.
func (v ADCVariant) Addr() uint16 {
	switch v {
	case Variant6A:
		return adcAddr6A
	case Variant6B:
		return adcAddr6B
	default:
		return adcAddr4
	}
}

// Channels returns how many channels a scan returns.
func (v ADCVariant) Channels() int {
	if v == Variant4 {
		return 4
	}
	return 6
}

func (v ADCVariant) setup() []byte {
	if v == Variant4 {
		return []byte{adcSetup, adcConfig4}
	}
	return []byte{adcSetup, adcConfig6}
}

// NextVariant returns the candidate probed after v fails: 4, 6A, 6B, 4, ...
func NextVariant(v ADCVariant) ADCVariant {
	return (v + 1) % numVariants
}

// Sample holds one raw scan in channel order. HV2 and HV2Temp stay zero on
// the 4-channel variant.
type Sample struct {
	HV1      uint8
	Amp1Temp uint8
	HV1Temp  uint8
	Amp2Temp uint8
	HV2      uint8
	HV2Temp  uint8
}

// ADC tracks discovery of the power-board ADC.
type ADC struct {
	candidate ADCVariant
	found     bool
}

// Variant returns the detected variant, or false while discovery is running.
func (a *ADC) Variant() (ADCVariant, bool) {
	return a.candidate, a.found
}

// Candidate returns the variant that will be probed or read next.
func (a *ADC) Candidate() ADCVariant {
	return a.candidate
}

// Poll runs one discovery/read cycle. While nothing is found it probes the
// current candidate only, advancing to the next one on failure. Once found it
// reads a full scan; a failed read drops back to discovery.
func (a *ADC) Poll(b Bus) (Sample, error) {
	if !a.found {
		cand := a.candidate
		if err := b.WriteBurst(cand.Addr(), cand.setup()); err != nil {
			a.candidate = NextVariant(cand)
			return Sample{}, fmt.Errorf("%w: %s: %w", ErrDeviceNotFound, cand, err)
		}
		a.found = true
		slog.Info("devices: adc detected", "variant", cand, "addr", cand.Addr())
		return Sample{}, ErrNoSample
	}

	raw, err := b.ReadBurst(a.candidate.Addr(), a.candidate.Channels())
	if err != nil {
		a.found = false
		slog.Warn("devices: adc read failed, restarting discovery", "variant", a.candidate, "err", err)
		return Sample{}, fmt.Errorf("devices: %s read: %w", a.candidate, err)
	}
	s := Sample{
		HV1:      raw[0],
		Amp1Temp: raw[1],
		HV1Temp:  raw[2],
		Amp2Temp: raw[3],
	}
	if len(raw) == 6 {
		s.HV2 = raw[4]
		s.HV2Temp = raw[5]
	}
	return s, nil
}

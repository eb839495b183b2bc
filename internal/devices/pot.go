package devices

import "log/slog"

// PotVariant is the detected fan-voltage potentiometer.
type PotVariant uint8

const (
	PotNone  PotVariant = iota
	PotTypeA            // wiper set by a bare byte write
	PotTypeB            // wiper set through an SMBus command byte
)

const (
	potAddrA   = 0x2F
	potAddrB   = 0x2E
	potCmdWipe = 0x00

	// PotMaxCode is the highest wiper position: maximum resistance, which
	// gives the minimum fan voltage.
	PotMaxCode = 127
)

func (v PotVariant) String() string {
	switch v {
	case PotTypeA:
		return "type-a"
	case PotTypeB:
		return "type-b"
	default:
		return "none"
	}
}

// Pot discovers the potentiometer by writing to it. The variant that last
// accepted a write is kept; a failed write switches the candidate to the
// other type for the next cycle. Only one type is tried per Write.
type Pot struct {
	candidate PotVariant
	present   bool
}

// NewPot returns a prober starting with TypeA.
func NewPot() *Pot {
	return &Pot{candidate: PotTypeA}
}

// Variant returns the detected variant, or PotNone.
func (p *Pot) Variant() PotVariant {
	if !p.present {
		return PotNone
	}
	return p.candidate
}

// Present reports whether the last write was acknowledged.
func (p *Pot) Present() bool {
	return p.present
}

// Write sets the wiper to code (0..PotMaxCode).
func (p *Pot) Write(b Bus, code uint8) error {
	if code > PotMaxCode {
		code = PotMaxCode
	}
	var err error
	if p.candidate == PotTypeB {
		err = b.WriteRegister(potAddrB, potCmdWipe, code)
	} else {
		err = b.SendByte(potAddrA, code)
	}
	if err != nil {
		if p.present {
			slog.Warn("devices: potentiometer stopped responding", "variant", p.candidate, "err", err)
		}
		p.present = false
		if p.candidate == PotTypeB {
			p.candidate = PotTypeA
		} else {
			p.candidate = PotTypeB
		}
		return err
	}
	if !p.present {
		slog.Info("devices: potentiometer detected", "variant", p.candidate)
	}
	p.present = true
	return nil
}

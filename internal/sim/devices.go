package sim

import (
	"fmt"
	"sync"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
)

// ADC simulates a scanning ADC returning Values in channel order.
type ADC struct {
	mu         sync.Mutex
	channels   int
	values     [6]uint8
	configured bool
}

// NewADC returns an ADC with the given channel count (4 or 6).
func NewADC(channels int) *ADC {
	return &ADC{channels: channels}
}

// Set sets the raw value of channel ch.
func (a *ADC) Set(ch int, v uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[ch] = v
}

// Configured reports whether setup bytes were received.
func (a *ADC) Configured() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configured
}

func (a *ADC) Tx(w, r []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(w) > 0 {
		a.configured = true
	}
	if len(r) > a.channels {
		return fmt.Errorf("sim: adc: read %d of %d channels: %w", len(r), a.channels, bus.ErrBusCondition)
	}
	copy(r, a.values[:len(r)])
	return nil
}

// Pot simulates a 7-bit digital potentiometer. With command set, writes must
// be prefixed with the wiper command byte; otherwise the wiper is a bare byte.
type Pot struct {
	mu      sync.Mutex
	command bool
	code    uint8
	writes  int
}

// NewPot returns a potentiometer at mid-scale.
func NewPot(command bool) *Pot {
	return &Pot{command: command, code: 64}
}

// Code returns the current wiper position.
func (p *Pot) Code() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

// Writes returns the number of accepted wiper writes.
func (p *Pot) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

func (p *Pot) Tx(w, r []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case len(r) > 0:
		r[0] = p.code
		return nil
	case p.command && len(w) == 2 && w[0] == 0x00:
		p.code = w[1] & 0x7F
	case !p.command && len(w) == 1:
		p.code = w[0] & 0x7F
	default:
		return fmt.Errorf("sim: pot: unexpected write % x: %w", w, bus.ErrNotAcknowledged)
	}
	p.writes++
	return nil
}

// EEPROM simulates a 256-byte EEPROM with 16-byte pages.
type EEPROM struct {
	mu  sync.Mutex
	mem [256]byte
	ptr uint8
}

// NewEEPROM returns an erased (all 0xFF) EEPROM.
func NewEEPROM() *EEPROM {
	e := &EEPROM{}
	for i := range e.mem {
		e.mem[i] = 0xFF
	}
	return e
}

// Load copies data into memory starting at addr.
func (e *EEPROM) Load(addr uint8, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, b := range data {
		e.mem[addr+uint8(i)] = b
	}
}

// Page returns a copy of page n.
func (e *EEPROM) Page(n uint8) [16]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out [16]byte
	copy(out[:], e.mem[int(n%16)*16:])
	return out
}

func (e *EEPROM) Tx(w, r []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(w) > 0 {
		e.ptr = w[0]
		// Page writes wrap within the page.
		base := e.ptr &^ 0x0F
		for i, b := range w[1:] {
			e.mem[base|((e.ptr+uint8(i))&0x0F)] = b
		}
	}
	for i := range r {
		r[i] = e.mem[e.ptr]
		e.ptr++
	}
	return nil
}

// Expander simulates an 8-bit GPIO expander with the MCP23008 register map.
// Pins configured as inputs read from the value set with SetInputs.
type Expander struct {
	mu     sync.Mutex
	regs   [11]byte
	inputs byte
	writes int
}

// NewExpander returns an expander with every pin an input.
func NewExpander() *Expander {
	e := &Expander{}
	e.regs[0x00] = 0xFF
	return e
}

// SetInputs sets the level of the input pins.
func (e *Expander) SetInputs(v byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = v
}

// Outputs returns the output latch.
func (e *Expander) Outputs() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs[0x0A]
}

// Writes returns the number of write transactions seen.
func (e *Expander) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}

func (e *Expander) Tx(w, r []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(w) == 0 {
		return fmt.Errorf("sim: expander: missing register: %w", bus.ErrBusCondition)
	}
	reg := int(w[0])
	if reg >= len(e.regs) {
		return fmt.Errorf("sim: expander: register 0x%02x: %w", reg, bus.ErrNotAcknowledged)
	}
	if len(w) > 1 {
		e.writes++
		for i, b := range w[1:] {
			e.regs[(reg+i)%len(e.regs)] = b
		}
	}
	for i := range r {
		n := (reg + i) % len(e.regs)
		if n == 0x09 {
			dir := e.regs[0x00]
			r[i] = e.inputs&dir | e.regs[0x0A]&^dir
			continue
		}
		r[i] = e.regs[n]
	}
	return nil
}

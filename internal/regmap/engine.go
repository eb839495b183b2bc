package regmap

import (
	"errors"
	"fmt"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
	"github.com/micro-nova/amplipi-preamp/internal/models"
)

// Phase is the engine's position within a host transaction.
type Phase uint8

const (
	Idle Phase = iota
	AddressMatched
	RegisterAddressReceived
	ReadResponding
	WriteReceiving
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AddressMatched:
		return "address-matched"
	case RegisterAddressReceived:
		return "register-received"
	case ReadResponding:
		return "read-responding"
	case WriteReceiving:
		return "write-receiving"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// ErrNoRegister means a read was addressed before any register byte.
var ErrNoRegister = errors.New("regmap: read without register address")

// Engine serves host transactions against a shared state. From the first
// address match until Stop it holds the state lock, the equivalent of
// stretching the clock, so every transaction observes the state as of its own
// start. An Engine serves one host bus and is not safe for concurrent use.
type Engine struct {
	shared *models.Shared
	st     *models.State
	phase  Phase
	reg    byte
	sent   bool
}

// NewEngine returns an idle engine serving sh.
func NewEngine(sh *models.Shared) *Engine {
	return &Engine{shared: sh}
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	return e.phase
}

// Start handles a start or repeated start addressed to addr (7-bit). It
// returns ErrNotAcknowledged when addr is not this unit's address.
func (e *Engine) Start(addr uint16, read bool) error {
	if e.st == nil {
		st := e.shared.Lock()
		if !matches(st, addr) {
			e.shared.Unlock()
			return fmt.Errorf("regmap: 0x%02x: %w", addr, bus.ErrNotAcknowledged)
		}
		e.st = st
	} else if !matches(e.st, addr) {
		e.Stop()
		return fmt.Errorf("regmap: repeated start to 0x%02x: %w", addr, bus.ErrNotAcknowledged)
	}

	if !read {
		e.phase = AddressMatched
		return nil
	}
	if e.phase != RegisterAddressReceived {
		e.phase = AddressMatched
		return ErrNoRegister
	}
	e.phase = ReadResponding
	e.sent = false
	return nil
}

func matches(st *models.State, addr uint16) bool {
	return st.Addr != 0 && addr == uint16(st.Addr>>1)
}

// Receive handles one byte written by the host: first the register address,
// then at most one data byte.
func (e *Engine) Receive(b byte) error {
	switch e.phase {
	case AddressMatched:
		e.reg = b
		e.phase = RegisterAddressReceived
		return nil
	case RegisterAddressReceived:
		Write(e.st, e.reg, b)
		e.phase = WriteReceiving
		return nil
	case WriteReceiving:
		return fmt.Errorf("regmap: second data byte for 0x%02x: %w", e.reg, bus.ErrBusCondition)
	default:
		return fmt.Errorf("regmap: byte received while %s: %w", e.phase, bus.ErrBusCondition)
	}
}

// Respond returns the byte for a read. Only one byte is served per
// transaction; further requests get Undefined and an error.
func (e *Engine) Respond() (byte, error) {
	if e.phase != ReadResponding {
		return Undefined, fmt.Errorf("regmap: read requested while %s: %w", e.phase, bus.ErrBusCondition)
	}
	if e.sent {
		return Undefined, fmt.Errorf("regmap: second read byte for 0x%02x: %w", e.reg, bus.ErrBusCondition)
	}
	e.sent = true
	return Read(e.st, e.reg), nil
}

// Stop ends the transaction and releases the state.
func (e *Engine) Stop() {
	if e.st != nil {
		e.st = nil
		e.shared.Unlock()
	}
	e.phase = Idle
	e.sent = false
}

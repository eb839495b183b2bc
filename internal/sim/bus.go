// Package sim provides an in-memory internal bus populated with simulated
// slave devices, for development without hardware and for tests.
package sim

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
)

// Device is a simulated slave. Tx sees the write bytes and fills the read
// buffer, exactly as i2c.Bus.Tx does for the addressed device.
type Device interface {
	Tx(w, r []byte) error
}

// Bus is a thread-safe simulated I2C bus implementing i2c.Bus.
type Bus struct {
	mu   sync.Mutex
	devs map[uint16]Device
	fail map[uint16]error
	ops  int
}

// NewBus returns an empty bus: every address NACKs.
func NewBus() *Bus {
	return &Bus{
		devs: make(map[uint16]Device),
		fail: make(map[uint16]error),
	}
}

// Attach places d at addr, replacing whatever was there.
func (b *Bus) Attach(addr uint16, d Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devs[addr] = d
}

// Detach removes the device at addr.
func (b *Bus) Detach(addr uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.devs, addr)
}

// SetFail makes every transaction to addr fail with err. A nil err clears it.
func (b *Bus) SetFail(addr uint16, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fail, addr)
		return
	}
	b.fail[addr] = err
}

// Ops returns the number of transactions attempted so far.
func (b *Bus) Ops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ops
}

func (b *Bus) String() string { return "sim" }

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(f physic.Frequency) error { return nil }

// Tx implements i2c.Bus.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	b.ops++
	d, ok := b.devs[addr]
	ferr := b.fail[addr]
	b.mu.Unlock()

	if ferr != nil {
		return ferr
	}
	if !ok {
		return fmt.Errorf("sim: 0x%02x: %w", addr, bus.ErrNotAcknowledged)
	}
	return d.Tx(w, r)
}

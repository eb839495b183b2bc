package regmap

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
	"github.com/micro-nova/amplipi-preamp/internal/models"
)

// HostPort exposes an Engine as an i2c.Bus, so host-side code can talk to an
// in-process unit exactly as it would over a real bus.
type HostPort struct {
	mu  sync.Mutex
	eng *Engine
}

// NewHostPort returns a port serving sh.
func NewHostPort(sh *models.Shared) *HostPort {
	return &HostPort{eng: NewEngine(sh)}
}

func (p *HostPort) String() string { return "hostport" }

// SetSpeed implements i2c.Bus.
func (p *HostPort) SetSpeed(f physic.Frequency) error { return nil }

// Tx implements i2c.Bus. w carries the register address and optional data
// byte; a non-empty r issues a repeated start and reads.
func (p *HostPort) Tx(addr uint16, w, r []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(w) == 0 {
		return fmt.Errorf("regmap: 0x%02x: empty write: %w", addr, bus.ErrBusCondition)
	}
	if err := p.eng.Start(addr, false); err != nil {
		return err
	}
	defer p.eng.Stop()
	for _, b := range w {
		if err := p.eng.Receive(b); err != nil {
			return err
		}
	}
	if len(r) == 0 {
		return nil
	}
	if err := p.eng.Start(addr, true); err != nil {
		return err
	}
	for i := range r {
		v, err := p.eng.Respond()
		if err != nil {
			return err
		}
		r[i] = v
	}
	return nil
}

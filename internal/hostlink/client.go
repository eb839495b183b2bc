// Package hostlink is the host side of the preamp register protocol. It reads
// and writes a chain of units over any i2c.Bus: the Linux bus on a Pi, or a
// regmap.HostPort when the controller runs in-process.
package hostlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/i2c"

	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

const (
	// MaxUnits is the longest supported daisy chain.
	MaxUnits = 6
	// FirstAddr is unit 0's 7-bit bus address; each further unit is +0x08.
	FirstAddr    = 0x08
	maxOpsPerSec = 500
)

// UnitAddr returns the 7-bit bus address of unit.
func UnitAddr(unit int) uint16 {
	return uint16(FirstAddr + unit*0x08)
}

// Client talks to preamp units. It is safe for concurrent use; transactions
// are serialised and rate limited.
type Client struct {
	mu       sync.Mutex
	bus      i2c.Bus
	limiter  *rate.Limiter
	clock    clockwork.Clock
	fracBits uint
	units    []int
}

// Option configures a Client.
type Option func(*Client)

// WithRate limits transactions per second; zero disables the limit.
func WithRate(opsPerSec int) Option {
	return func(c *Client) {
		if opsPerSec <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(opsPerSec), 10)
	}
}

// WithClock sets the clock used for relay waits and the Pi temperature sender.
func WithClock(clk clockwork.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithFanVoltsFracBits sets the fractional bits of the FAN_VOLTS register (3 or 4).
func WithFanVoltsFracBits(n uint) Option {
	return func(c *Client) { c.fracBits = n }
}

// New returns a client on b.
func New(b i2c.Bus, opts ...Option) *Client {
	c := &Client{
		bus:      b,
		limiter:  rate.NewLimiter(rate.Limit(maxOpsPerSec), 10),
		clock:    clockwork.NewRealClock(),
		fracBits: 4,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ErrInvalidUnit is returned for unit indices outside the chain.
var ErrInvalidUnit = errors.New("hostlink: invalid unit")

func checkUnit(unit int) error {
	if unit < 0 || unit >= MaxUnits {
		return fmt.Errorf("%w %d", ErrInvalidUnit, unit)
	}
	return nil
}

// Write writes v to register reg of unit.
func (c *Client) Write(ctx context.Context, unit int, reg, v byte) error {
	if err := checkUnit(unit); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bus.Tx(UnitAddr(unit), []byte{reg, v}, nil); err != nil {
		return fmt.Errorf("hostlink: unit %d write 0x%02x: %w", unit, reg, err)
	}
	return nil
}

// Read reads register reg of unit with a write-then-repeated-start read.
func (c *Client) Read(ctx context.Context, unit int, reg byte) (byte, error) {
	if err := checkUnit(unit); err != nil {
		return 0, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var r [1]byte
	if err := c.bus.Tx(UnitAddr(unit), []byte{reg}, r[:]); err != nil {
		return 0, fmt.Errorf("hostlink: unit %d read 0x%02x: %w", unit, reg, err)
	}
	return r[0], nil
}

func (c *Client) readN(ctx context.Context, unit int, regs ...byte) ([]byte, error) {
	out := make([]byte, len(regs))
	for i, reg := range regs {
		v, err := c.Read(ctx, unit, reg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Probe finds the units answering on the bus. Addresses are assigned in chain
// order, so the first silent address ends the chain.
func (c *Client) Probe(ctx context.Context) ([]int, error) {
	var found []int
	for unit := 0; unit < MaxUnits; unit++ {
		if _, err := c.Read(ctx, unit, regmap.RegVersionMaj); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("hostlink: no response", "unit", unit, "addr", fmt.Sprintf("0x%02x", UnitAddr(unit)), "err", err)
			break
		}
		slog.Info("hostlink: preamp detected", "unit", unit, "addr", fmt.Sprintf("0x%02x", UnitAddr(unit)))
		found = append(found, unit)
	}
	c.mu.Lock()
	c.units = found
	c.mu.Unlock()
	if len(found) == 0 {
		return nil, fmt.Errorf("hostlink: no preamp units on %s", c.bus)
	}
	return found, nil
}

// Units returns the units found by the last Probe.
func (c *Client) Units() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.units))
	copy(out, c.units)
	return out
}

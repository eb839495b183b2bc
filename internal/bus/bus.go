// Package bus is the transfer engine for the preamp's internal I2C bus.
//
// Every operation is synchronous: it returns once the transfer completed, was
// not acknowledged, lost arbitration or hit a bus error. Nothing is retried;
// callers decide whether a failure means "device absent" or warrants Recover.
package bus

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/i2c"
)

// MaxPayload is the largest transfer allowed in one transaction: a 16-byte
// EEPROM page plus its word address.
const MaxPayload = 17

// Presence bitmap geometry, shared with the register map. Addresses 0x20-0x6F
// are tracked, eight per byte.
const (
	PresenceFirst = 0x20
	PresenceBytes = 10
)

// Bus serialises transactions on one internal I2C bus and tracks which
// addresses acknowledged most recently.
type Bus struct {
	mu       sync.Mutex
	dev      i2c.Bus
	presence [2]uint64
	rec      Recovery
	warn     *rate.Limiter
}

// New returns a Bus driving dev. rec may be the zero value when the bus lines
// cannot be bit-banged; Recover then falls back to the driver's i2c.Pins.
func New(dev i2c.Bus, rec Recovery) *Bus {
	return &Bus{
		dev:  dev,
		rec:  rec,
		warn: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// String returns the underlying bus name.
func (b *Bus) String() string {
	return b.dev.String()
}

// SendByte sends a single byte with no register address.
func (b *Bus) SendByte(dev uint16, v byte) error {
	return b.tx("write_byte", dev, []byte{v}, nil)
}

// WriteRegister writes v to register reg of dev.
func (b *Bus) WriteRegister(dev uint16, reg, v byte) error {
	return b.tx("write_register", dev, []byte{reg, v}, nil)
}

// ReadRegister reads register reg of dev using a repeated start.
func (b *Bus) ReadRegister(dev uint16, reg byte) (byte, error) {
	var r [1]byte
	if err := b.tx("read_register", dev, []byte{reg}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

// WriteBurst writes p to dev in one transaction.
func (b *Bus) WriteBurst(dev uint16, p []byte) error {
	return b.tx("write_burst", dev, p, nil)
}

// ReadBurst reads n bytes from dev in one transaction.
func (b *Bus) ReadBurst(dev uint16, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := b.tx("read_burst", dev, nil, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (b *Bus) tx(op string, addr uint16, w, r []byte) error {
	if len(w) > MaxPayload || len(r) > MaxPayload || addr > 0x7F {
		return &TxError{Addr: addr, Op: op, Err: ErrBusCondition}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.dev.Tx(addr, w, r)
	if err != nil {
		err = classify(err)
	}
	b.track(addr, err)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotAcknowledged) && b.warn.Allow() {
		slog.Warn("bus: transaction failed", "bus", b.dev.String(), "op", op, "addr", addr, "err", err)
	}
	return &TxError{Addr: addr, Op: op, Err: err}
}

// track updates the presence set. Only an ACK or a NACK says anything about
// the device; other failures leave the last known state alone.
func (b *Bus) track(addr uint16, err error) {
	word, bit := addr>>6, uint64(1)<<(addr&63)
	was := b.presence[word]&bit != 0
	switch {
	case err == nil:
		b.presence[word] |= bit
	case errors.Is(err, ErrNotAcknowledged):
		b.presence[word] &^= bit
		if was {
			slog.Debug("bus: device stopped acknowledging", "bus", b.dev.String(), "addr", addr)
		}
	}
}

// Present reports whether addr acknowledged its most recent transaction.
func (b *Bus) Present(addr uint16) bool {
	if addr > 0x7F {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presence[addr>>6]&(1<<(addr&63)) != 0
}

// PresenceBitmap returns the presence of addresses 0x20-0x6F, where address a
// is bit a&7 of byte (a>>3)-4.
func (b *Bus) PresenceBitmap() [PresenceBytes]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [PresenceBytes]byte
	for i := 0; i < PresenceBytes*8; i++ {
		addr := uint16(PresenceFirst + i)
		if b.presence[addr>>6]&(1<<(addr&63)) != 0 {
			out[(addr>>3)-4] |= 1 << (addr & 7)
		}
	}
	return out
}

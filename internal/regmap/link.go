package regmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
)

// Link frames carry host transactions over a byte stream, so a host that
// cannot reach the unit's bus pins (a TCP client, a UART bridge) still talks
// to the register map:
//
//	request   addr wlen rlen w[wlen]
//	response  status r[rlen]      r only when status is LinkOK
//
// addr is the 7-bit unit address. wlen and rlen are capped at bus.MaxPayload.
const (
	LinkOK       byte = 0x00
	LinkNACK     byte = 0x01
	LinkBusError byte = 0x02
)

// ErrFrame means a link request could not be framed. The stream is out of
// step and must be dropped.
var ErrFrame = errors.New("regmap: malformed link frame")

// ServeLink answers link requests from rw against p until rw fails or ctx is
// done. Reads that return no data (a UART read timeout) are retried.
func ServeLink(ctx context.Context, rw io.ReadWriter, p *HostPort) error {
	var hdr [3]byte
	var w, r [bus.MaxPayload]byte
	for {
		if err := readFull(ctx, rw, hdr[:], 0); err != nil {
			return err
		}
		addr, wlen, rlen := uint16(hdr[0]), int(hdr[1]), int(hdr[2])
		if addr > 0x7F || wlen > bus.MaxPayload || rlen > bus.MaxPayload {
			return fmt.Errorf("%w: header % x", ErrFrame, hdr)
		}
		if err := readFull(ctx, rw, w[:wlen], 0); err != nil {
			return err
		}

		resp := make([]byte, 1, 1+rlen)
		err := p.Tx(addr, w[:wlen], r[:rlen])
		switch {
		case err == nil:
			resp = append(resp, r[:rlen]...)
		case errors.Is(err, bus.ErrNotAcknowledged):
			resp[0] = LinkNACK
		default:
			resp[0] = LinkBusError
		}
		if _, err := rw.Write(resp); err != nil {
			return fmt.Errorf("regmap: link write: %w", err)
		}
	}
}

// readFull fills buf. A zero-length read with no error is retried until ctx
// is done or, with a non-zero timeout, until it expires.
func readFull(ctx context.Context, rd io.Reader, buf []byte, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for got := 0; got < len(buf); {
		n, err := rd.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) && got > 0 {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if n == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				return bus.ErrTimeout
			}
		}
	}
	return nil
}

// DefaultLinkTimeout bounds one LinkBus transaction.
const DefaultLinkTimeout = time.Second

// LinkBus is the host end of a link: an i2c.Bus whose transactions are
// framed over rw.
type LinkBus struct {
	mu      sync.Mutex
	rw      io.ReadWriter
	name    string
	timeout time.Duration
}

// NewLinkBus returns a bus framing transactions over rw.
func NewLinkBus(name string, rw io.ReadWriter) *LinkBus {
	return &LinkBus{rw: rw, name: name, timeout: DefaultLinkTimeout}
}

// SetTimeout bounds each transaction's wait for the response.
func (l *LinkBus) SetTimeout(d time.Duration) { l.timeout = d }

func (l *LinkBus) String() string { return "link(" + l.name + ")" }

// SetSpeed implements i2c.Bus. The link has no bus clock.
func (l *LinkBus) SetSpeed(f physic.Frequency) error { return nil }

// Tx implements i2c.Bus.
func (l *LinkBus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F || len(w) > bus.MaxPayload || len(r) > bus.MaxPayload {
		return fmt.Errorf("regmap: link 0x%02x: %d/%d bytes: %w", addr, len(w), len(r), bus.ErrBusCondition)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	req := append([]byte{byte(addr), byte(len(w)), byte(len(r))}, w...)
	if _, err := l.rw.Write(req); err != nil {
		return fmt.Errorf("regmap: link write: %w", err)
	}
	var status [1]byte
	if err := readFull(context.Background(), l.rw, status[:], l.timeout); err != nil {
		return fmt.Errorf("regmap: link 0x%02x: %w", addr, err)
	}
	switch status[0] {
	case LinkOK:
	case LinkNACK:
		return fmt.Errorf("regmap: link 0x%02x: %w", addr, bus.ErrNotAcknowledged)
	case LinkBusError:
		return fmt.Errorf("regmap: link 0x%02x: %w", addr, bus.ErrBusCondition)
	default:
		return fmt.Errorf("%w: status 0x%02x", ErrFrame, status[0])
	}
	if err := readFull(context.Background(), l.rw, r, l.timeout); err != nil {
		return fmt.Errorf("regmap: link 0x%02x: %w", addr, err)
	}
	return nil
}

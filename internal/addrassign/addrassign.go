// Package addrassign implements the daisy-chain address assignment link. The
// host sends a unit its bus address as a three byte UART frame; the unit takes
// the address and sends the next one (+0x10) to the unit below it.
package addrassign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Frame bytes.
const (
	Header     = 'A'
	Terminator = '\n'
)

// Step is the address distance between neighbouring units.
const Step = 0x10

// Frame returns the wire frame carrying addr.
func Frame(addr uint8) []byte {
	return []byte{Header, addr, Terminator}
}

// Parser extracts frames from a byte stream.
type Parser struct {
	state int
	addr  uint8
}

const (
	waitHeader = iota
	waitAddr
	waitTerm
)

// Feed consumes one byte and returns the address once a complete frame has
// been seen. Bytes that do not fit a frame are discarded until the next
// header. Address 0 means unassigned and is never reported.
func (p *Parser) Feed(b byte) (uint8, bool) {
	switch p.state {
	case waitHeader:
		if b == Header {
			p.state = waitAddr
		}
	case waitAddr:
		p.addr = b
		p.state = waitTerm
	case waitTerm:
		p.state = waitHeader
		if b == Terminator {
			return p.addr, p.addr != 0
		}
		if b == Header {
			p.state = waitAddr
		}
	}
	return 0, false
}

// Receiver turns an upstream byte stream into address assignments. Only the
// newest unconsumed address is kept.
type Receiver struct {
	ch chan uint8
	p  Parser
}

// NewReceiver returns a receiver with an empty queue.
func NewReceiver() *Receiver {
	return &Receiver{ch: make(chan uint8, 1)}
}

// Addresses is the queue the scheduler drains.
func (r *Receiver) Addresses() <-chan uint8 {
	return r.ch
}

// Run reads src until ctx is done or src fails. A read returning no data (a
// serial read timeout) just rechecks ctx. io.EOF ends Run without error.
func (r *Receiver) Run(ctx context.Context, src io.Reader) error {
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		for _, b := range buf[:n] {
			if addr, ok := r.p.Feed(b); ok {
				r.offer(addr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("addrassign: read: %w", err)
		}
	}
}

func (r *Receiver) offer(addr uint8) {
	for {
		select {
		case r.ch <- addr:
			slog.Debug("addrassign: frame received", "addr", addr)
			return
		default:
		}
		select {
		case old := <-r.ch:
			slog.Debug("addrassign: superseded", "addr", old)
		default:
		}
	}
}

// Forwarder sends address frames downstream.
type Forwarder struct {
	W io.Writer
}

// Forward writes the frame for addr.
func (f Forwarder) Forward(addr uint8) error {
	if _, err := f.W.Write(Frame(addr)); err != nil {
		return fmt.Errorf("addrassign: forward 0x%02x: %w", addr, err)
	}
	return nil
}

package regmap_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

func newLink(t *testing.T, sh *models.Shared) *regmap.LinkBus {
	t.Helper()
	srv, cli := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- regmap.ServeLink(ctx, srv, regmap.NewHostPort(sh)) }()
	t.Cleanup(func() {
		cancel()
		cli.Close()
		srv.Close()
		<-done
	})
	return regmap.NewLinkBus("pipe", cli)
}

func TestLinkTransactions(t *testing.T) {
	sh := models.NewShared(newState())
	link := newLink(t, sh)

	if err := link.Tx(busAddr, []byte{regmap.RegVolZone1 + 2, 33}, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := sh.Snapshot().Audio.Vol[2]; got != 33 {
		t.Errorf("vol zone 3 = %d, want 33", got)
	}

	r := make([]byte, 1)
	tests := []struct {
		name string
		reg  byte
		want byte
	}{
		{"written volume", regmap.RegVolZone1 + 2, 33},
		{"version major", regmap.RegVersionMaj, 1},
		{"undefined", 0x7E, regmap.Undefined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := link.Tx(busAddr, []byte{tt.reg}, r); err != nil {
				t.Fatalf("read 0x%02x: %v", tt.reg, err)
			}
			if r[0] != tt.want {
				t.Errorf("read 0x%02x = 0x%02x, want 0x%02x", tt.reg, r[0], tt.want)
			}
		})
	}
}

func TestLinkErrors(t *testing.T) {
	link := newLink(t, models.NewShared(newState()))
	r := make([]byte, 1)

	if err := link.Tx(0x09, []byte{regmap.RegVolZone1}, r); !errors.Is(err, bus.ErrNotAcknowledged) {
		t.Errorf("wrong address: err = %v, want ErrNotAcknowledged", err)
	}
	if err := link.Tx(busAddr, nil, r); !errors.Is(err, bus.ErrBusCondition) {
		t.Errorf("read without register: err = %v, want ErrBusCondition", err)
	}
	if err := link.Tx(busAddr, make([]byte, bus.MaxPayload+1), nil); !errors.Is(err, bus.ErrBusCondition) {
		t.Errorf("oversized write: err = %v, want ErrBusCondition", err)
	}
	// The stream is still in step after the failures.
	if err := link.Tx(busAddr, []byte{regmap.RegVersionMaj}, r); err != nil || r[0] != 1 {
		t.Errorf("read after errors = %d, %v", r[0], err)
	}
}

// stream replays in and records what is written.
type stream struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func (s *stream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.out.Write(p) }

func TestServeLinkRejectsBadHeader(t *testing.T) {
	rw := &stream{in: bytes.NewReader([]byte{busAddr, bus.MaxPayload + 1, 0})}
	err := regmap.ServeLink(context.Background(), rw, regmap.NewHostPort(models.NewShared(newState())))
	if !errors.Is(err, regmap.ErrFrame) {
		t.Errorf("err = %v, want ErrFrame", err)
	}
}

func TestServeLinkAnswersUntilEOF(t *testing.T) {
	req := []byte{
		busAddr, 1, 1, regmap.RegVersionMaj,
		0x09, 1, 1, regmap.RegVersionMaj,
	}
	rw := &stream{in: bytes.NewReader(req)}
	err := regmap.ServeLink(context.Background(), rw, regmap.NewHostPort(models.NewShared(newState())))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want EOF", err)
	}
	want := []byte{regmap.LinkOK, 1, regmap.LinkNACK}
	if got := rw.out.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("responses = % x, want % x", got, want)
	}
}

// idle reads nothing, like a UART whose read timeout expired.
type idle struct{}

func (idle) Read(p []byte) (int, error)  { return 0, nil }
func (idle) Write(p []byte) (int, error) { return len(p), nil }

func TestServeLinkStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := regmap.ServeLink(ctx, idle{}, regmap.NewHostPort(models.NewShared(newState())))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLinkBusTimesOut(t *testing.T) {
	link := regmap.NewLinkBus("idle", idle{})
	link.SetTimeout(10 * time.Millisecond)
	if err := link.Tx(busAddr, []byte{regmap.RegVersionMaj}, make([]byte, 1)); !errors.Is(err, bus.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

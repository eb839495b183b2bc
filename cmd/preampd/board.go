package main

import (
	"fmt"
	"io"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
	"github.com/micro-nova/amplipi-preamp/internal/config"
	"github.com/micro-nova/amplipi-preamp/internal/hostlink"
	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/preamp"
	"github.com/micro-nova/amplipi-preamp/internal/sim"
)

// board is what the scheduler drives.
type board struct {
	bus       *bus.Bus
	audio     preamp.AudioOut
	expansion *preamp.ExpansionPins
	closers   []io.Closer
}

func (b *board) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
}

// newHardware opens the internal bus and pins through periph.
func newHardware(cfg config.Config) (*board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	dev, err := i2creg.Open(cfg.Bus.Name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus.Name, err)
	}
	b := &board{closers: []io.Closer{dev}}

	rec := bus.Recovery{HalfPeriod: cfg.Bus.HalfPeriod}
	if cfg.Bus.SCL != "" {
		scl, err := pin(cfg.Bus.SCL)
		if err != nil {
			b.Close()
			return nil, err
		}
		sda, err := pin(cfg.Bus.SDA)
		if err != nil {
			b.Close()
			return nil, err
		}
		rec.SCL, rec.SDA = scl, sda
	}
	b.bus = bus.New(dev, rec)

	b.expansion = &preamp.ExpansionPins{}
	for _, p := range []struct {
		name string
		dst  *preamp.Output
	}{
		{cfg.Pins.NRST, &b.expansion.NRST},
		{cfg.Pins.Boot0, &b.expansion.Boot0},
		{cfg.Pins.UART, &b.expansion.UART},
	} {
		if p.name == "" {
			continue
		}
		out, err := pin(p.name)
		if err != nil {
			b.Close()
			return nil, err
		}
		*p.dst = out
	}
	b.audio = logAudio{}
	return b, nil
}

func pin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	return p, nil
}

// newSimBoard builds the simulated power board selected by cfg.Sim.
func newSimBoard(cfg config.Config) (*board, error) {
	opts := sim.BoardOpts{EEPROM: cfg.Sim.EEPROM}
	switch cfg.Sim.ADC {
	case "4":
		opts.ADCAddr = sim.ADC4Addr
	case "6a":
		opts.ADCAddr = sim.ADC6AAddr
	case "6b":
		opts.ADCAddr = sim.ADC6BAddr
	}
	switch cfg.Sim.Pot {
	case "a":
		opts.PotAddr = sim.PotAAddr
	case "b":
		opts.PotAddr = sim.PotBAddr
	}
	sb := sim.NewBoard(opts)

	if sb.EEPROM != nil {
		page, err := hostlink.EncodeBoardInfo(hostlink.BoardInfo{
			Serial:   1,
			UnitType: hostlink.UnitTypeMain,
			BoardRev: "Rev4.A",
		})
		if err != nil {
			return nil, err
		}
		sb.EEPROM.Load(0, page[:])
	}

	return &board{
		bus:   bus.New(sb.Bus, bus.Recovery{SCL: sim.NewLine(), SDA: sim.NewLine()}),
		audio: sim.NewAudio(),
		expansion: &preamp.ExpansionPins{
			NRST:  sim.NewLine(),
			Boot0: sim.NewLine(),
			UART:  sim.NewLine(),
		},
	}, nil
}

// logAudio reports audio output changes. The mux and volume ICs are driven
// by the analog board's own controller.
type logAudio struct{}

func (logAudio) SetSource(zone, src int) {
	slog.Debug("audio: source", "zone", zone+1, "src", src)
}

func (logAudio) SetSourceType(src int, digital bool) {
	slog.Debug("audio: source type", "src", src, "digital", digital)
}

func (logAudio) SetMute(zone int, muted bool) {
	slog.Debug("audio: mute", "zone", zone+1, "muted", muted)
}

func (logAudio) SetStandby(zone int, standby bool) {
	slog.Debug("audio: standby", "zone", zone+1, "standby", standby)
}

func (logAudio) SetVolume(zone int, att uint8) {
	if att == models.VolMute {
		slog.Debug("audio: volume", "zone", zone+1, "att", "mute")
		return
	}
	slog.Debug("audio: volume", "zone", zone+1, "att", att)
}

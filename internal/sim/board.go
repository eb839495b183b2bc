package sim

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Default device addresses on the simulated internal bus.
const (
	ADC4Addr   = 0x64
	ADC6AAddr  = 0x65
	ADC6BAddr  = 0x6A
	PotAAddr   = 0x2F
	PotBAddr   = 0x2E
	EEPROMAddr = 0x50
	LEDAddr    = 0x20
	PowerAddr  = 0x21
)

// Power expander input bits for a healthy board.
const PowerGood = 0x01 | 0x04 | 0x10 | 0x20

// BoardOpts selects which optional devices are fitted.
type BoardOpts struct {
	ADCAddr uint16 // 0 = no ADC
	PotAddr uint16 // 0 = no potentiometer
	EEPROM  bool
}

// Board is a simulated power board wired to a simulated bus.
type Board struct {
	Bus    *Bus
	ADC    *ADC
	Pot    *Pot
	EEPROM *EEPROM
	Power  *Expander
	LEDs   *Expander
}

// NewBoard builds a board with the requested devices. The ADC channels are
// preset to a room-temperature, 24 V reading.
func NewBoard(opts BoardOpts) *Board {
	b := &Board{
		Bus:   NewBus(),
		Power: NewExpander(),
		LEDs:  NewExpander(),
	}
	b.Power.SetInputs(PowerGood)
	b.Bus.Attach(PowerAddr, b.Power)
	b.Bus.Attach(LEDAddr, b.LEDs)

	if opts.ADCAddr != 0 {
		channels := 6
		if opts.ADCAddr == ADC4Addr {
			channels = 4
		}
		b.ADC = NewADC(channels)
		b.ADC.Set(0, 83)  // ~24 V
		b.ADC.Set(1, 140) // ~30 °C
		b.ADC.Set(2, 140)
		b.ADC.Set(3, 140)
		b.Bus.Attach(opts.ADCAddr, b.ADC)
	}
	if opts.PotAddr != 0 {
		b.Pot = NewPot(opts.PotAddr == PotBAddr)
		b.Bus.Attach(opts.PotAddr, b.Pot)
	}
	if opts.EEPROM {
		b.EEPROM = NewEEPROM()
		b.Bus.Attach(EEPROMAddr, b.EEPROM)
	}
	return b
}

// Line simulates an open-drain bus line or a plain output pin. While stuck is
// non-zero the line reads low, counting down once per read.
type Line struct {
	mu    sync.Mutex
	level gpio.Level
	stuck int
}

// NewLine returns a released (high) line.
func NewLine() *Line {
	return &Line{level: gpio.High}
}

// Stick holds the line low for the next n reads.
func (l *Line) Stick(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stuck = n
}

// In releases the line.
func (l *Line) In(pull gpio.Pull, edge gpio.Edge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = gpio.High
	return nil
}

// Read returns the line level.
func (l *Line) Read() gpio.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stuck > 0 {
		l.stuck--
		return gpio.Low
	}
	return l.level
}

// Out drives the line.
func (l *Line) Out(level gpio.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	return nil
}

// Level returns the driven level without consuming a stuck read.
func (l *Line) Level() gpio.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

package bus

import (
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

const (
	recoverPulses   = 9
	recoverAttempts = 10
)

// Line is the part of gpio.PinIO needed to bit-bang one bus line. Releasing a
// line means switching it to a pulled-up input; only a low level is driven.
type Line interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	Out(l gpio.Level) error
}

// Recovery wires the bus lines used by Recover.
type Recovery struct {
	SCL Line
	SDA Line
	// Reenable hands the lines back to the I2C peripheral. Optional.
	Reenable func() error
	// HalfPeriod is the delay between clock edges; zero skips the delay.
	HalfPeriod time.Duration
}

// Recover frees a bus left stuck by a participant reset mid-transfer. It
// releases both lines, clocks SCL up to nine times while SDA must stay high
// (restarting the pulse train, at most ten times, whenever SDA is seen low),
// synthesises a stop condition and re-enables the peripheral.
//
// It may be called at any time, including before the first transaction.
func (b *Bus) Recover() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	scl, sda := b.rec.SCL, b.rec.SDA
	if scl == nil || sda == nil {
		if p, ok := b.dev.(i2c.Pins); ok && p.SCL() != gpio.INVALID && p.SDA() != gpio.INVALID {
			scl, sda = p.SCL(), p.SDA()
		}
	}
	if scl == nil || sda == nil {
		return ErrNoRecoveryLines
	}

	if err := release(scl, sda); err != nil {
		return err
	}

	attempt := 0
	var pinErr error
	timeout := PollUntil(func() bool {
		attempt++
		clean, err := b.pulseTrain(scl, sda)
		if err != nil {
			pinErr = err
			return true
		}
		return clean
	}, recoverAttempts)
	if pinErr != nil {
		return pinErr
	}
	clean := timeout == nil

	if err := b.stop(scl, sda); err != nil {
		return err
	}
	if b.rec.Reenable != nil {
		if err := b.rec.Reenable(); err != nil {
			return fmt.Errorf("bus: recover: reenable: %w", err)
		}
	}
	if !clean {
		slog.Warn("bus: recovery failed, SDA held low", "bus", b.dev.String(), "attempts", attempt)
		return ErrStuckBus
	}
	if attempt > 1 {
		slog.Warn("bus: recovered stuck bus", "bus", b.dev.String(), "attempts", attempt)
	}
	return nil
}

// pulseTrain clocks SCL up to nine times and reports whether SDA read high
// after every pulse.
func (b *Bus) pulseTrain(scl, sda Line) (bool, error) {
	for pulse := 0; pulse < recoverPulses; pulse++ {
		if err := scl.Out(gpio.Low); err != nil {
			return false, fmt.Errorf("bus: recover: scl low: %w", err)
		}
		b.halfPeriod()
		if err := scl.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return false, fmt.Errorf("bus: recover: scl release: %w", err)
		}
		b.halfPeriod()
		if sda.Read() == gpio.Low {
			return false, nil
		}
	}
	return true, nil
}

func release(scl, sda Line) error {
	if err := sda.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("bus: recover: sda release: %w", err)
	}
	if err := scl.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("bus: recover: scl release: %w", err)
	}
	return nil
}

// stop drives SDA low with SCL low, raises SCL, then releases SDA: a rising
// SDA edge while SCL is high.
func (b *Bus) stop(scl, sda Line) error {
	if err := scl.Out(gpio.Low); err != nil {
		return fmt.Errorf("bus: recover: stop: %w", err)
	}
	if err := sda.Out(gpio.Low); err != nil {
		return fmt.Errorf("bus: recover: stop: %w", err)
	}
	b.halfPeriod()
	if err := scl.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("bus: recover: stop: %w", err)
	}
	b.halfPeriod()
	if err := sda.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("bus: recover: stop: %w", err)
	}
	b.halfPeriod()
	return nil
}

func (b *Bus) halfPeriod() {
	if b.rec.HalfPeriod > 0 {
		time.Sleep(b.rec.HalfPeriod)
	}
}

// PollUntil evaluates pred up to bound times and returns ErrTimeout if it
// never held.
func PollUntil(pred func() bool, bound int) error {
	for i := 0; i < bound; i++ {
		if pred() {
			return nil
		}
	}
	return ErrTimeout
}

package hostlink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Reset timing. NRST needs more than 300 ns; the controller takes about 6 ms
// to come up.
const (
	ResetHold   = time.Millisecond
	ResetSettle = 10 * time.Millisecond
)

// Output is a pin the host drives.
type Output interface {
	Out(l gpio.Level) error
}

// ResetPins are the host's lines to unit 0's NRST (active low) and BOOT0.
type ResetPins struct {
	NRST  Output
	Boot0 Output
}

// Reset pulses NRST with BOOT0 selecting the boot mode: the bootloader for
// firmware updates, flash otherwise. The unit comes back without a bus
// address, so AssignAddress must follow.
func (c *Client) Reset(ctx context.Context, pins ResetPins, bootloader bool) error {
	if err := pins.NRST.Out(gpio.Low); err != nil {
		return fmt.Errorf("hostlink: assert NRST: %w", err)
	}
	if err := pins.Boot0.Out(gpio.Level(bootloader)); err != nil {
		return fmt.Errorf("hostlink: set BOOT0: %w", err)
	}
	if err := c.wait(ctx, ResetHold); err != nil {
		return err
	}
	if err := pins.NRST.Out(gpio.High); err != nil {
		return fmt.Errorf("hostlink: release NRST: %w", err)
	}
	if err := c.wait(ctx, ResetSettle); err != nil {
		return err
	}
	slog.Debug("hostlink: unit reset", "bootloader", bootloader)
	return nil
}

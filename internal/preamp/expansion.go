package preamp

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/amplipi-preamp/internal/models"
)

// Output is a pin the controller drives.
type Output interface {
	Out(l gpio.Level) error
}

// ExpansionPins drives the expansion connector: the downstream unit's reset
// (NRST, active low) and boot-mode (BOOT0) lines, and the switch that routes
// the host UART through to it. Nil pins are skipped.
type ExpansionPins struct {
	NRST  Output
	Boot0 Output
	UART  Output

	last  models.Expansion
	valid bool
}

// Apply drives the pins to e. Pins only change when e does.
func (p *ExpansionPins) Apply(e models.Expansion) error {
	if p.valid && e == p.last {
		return nil
	}
	for _, pin := range []struct {
		name string
		out  Output
		on   bool
	}{
		{"boot0", p.Boot0, e.Boot0},
		{"uart", p.UART, e.UARTPassthrough},
		{"nrst", p.NRST, e.NRST},
	} {
		if pin.out == nil {
			continue
		}
		if err := pin.out.Out(gpio.Level(pin.on)); err != nil {
			p.valid = false
			return fmt.Errorf("preamp: expansion %s: %w", pin.name, err)
		}
	}
	p.last = e
	p.valid = true
	return nil
}

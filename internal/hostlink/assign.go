package hostlink

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/micro-nova/amplipi-preamp/internal/addrassign"
)

// MainUnitAddr is the 8-bit address sent to unit 0; the chain derives the rest.
const MainUnitAddr = FirstAddr << 1

// AssignAddress sends unit 0 its bus address over the UART link w. Each unit
// forwards the next address down the chain within a few milliseconds.
func AssignAddress(w io.Writer, addr uint8) error {
	if err := (addrassign.Forwarder{W: w}).Forward(addr); err != nil {
		return fmt.Errorf("hostlink: assign address: %w", err)
	}
	slog.Debug("hostlink: sent address assignment", "addr", fmt.Sprintf("0x%02x", addr))
	return nil
}

package hostlink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/micro-nova/amplipi-preamp/internal/fixed"
)

// PiTempPath is the Raspberry Pi CPU thermal zone.
const PiTempPath = "/sys/class/thermal/thermal_zone0/temp"

// ReadPiTemp reads a thermal zone file holding millidegrees Celsius.
func ReadPiTemp(path string) (fixed.Temp8, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("pitemp: read %s: %w", path, err)
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pitemp: parse: %w", err)
	}
	return fixed.Temp8FromCelsius(float64(milli) / 1000), nil
}

// RunPiTempSender writes the CPU temperature from path to every probed unit
// each interval, so their fan controllers can account for it. It returns when
// ctx is done.
func (c *Client) RunPiTempSender(ctx context.Context, path string, interval time.Duration) {
	t := c.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			temp, err := ReadPiTemp(path)
			if err != nil {
				// Not fatal: the zone file does not exist off the Pi.
				slog.Debug("pitemp: unavailable", "err", err)
				continue
			}
			for _, unit := range c.Units() {
				if err := c.WritePiTemp(ctx, unit, temp); err != nil {
					slog.Debug("pitemp: write failed", "unit", unit, "err", err)
				}
			}
		}
	}
}

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/micro-nova/amplipi-preamp/internal/hostlink"
	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

const simPiTempInterval = 5 * time.Second

// runSimHost plays the host's part against the simulated unit: once an
// address is assigned it surveys the unit through the register map, then
// forwards this machine's CPU temperature like the real host does.
func runSimHost(ctx context.Context, sh *models.Shared, port *regmap.HostPort) {
	if _, err := waitForAddress(ctx, sh); err != nil {
		return
	}
	client := hostlink.New(port)
	units, err := client.Survey(ctx)
	if err != nil {
		slog.Warn("sim host: survey failed", "err", err)
		return
	}
	for _, u := range units {
		slog.Info("sim host: unit",
			"index", u.Index,
			"addr", u.Addr,
			"board", u.Board.UnitType,
			"rev", u.Board.BoardRev,
			"firmware", u.Firmware,
			"fan_mode", u.FanMode,
		)
	}
	client.RunPiTempSender(ctx, hostlink.PiTempPath, simPiTempInterval)
}

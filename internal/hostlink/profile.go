package hostlink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/micro-nova/amplipi-preamp/internal/fan"
)

// UnitInfo describes one unit of the chain.
type UnitInfo struct {
	Index     int    // 0 = main unit, 1+ = expanders
	Addr      uint16 // 7-bit bus address
	Board     BoardInfo
	ZoneBase  int // first global zone index (Index * 6)
	ZoneCount int
	HasAnalog bool
	Rev4Plus  bool // EEPROM found on the unit's internal bus
	Firmware  Version
	FanMode   fan.Mode
	HV2       bool
}

// Survey probes the chain and describes every unit. A unit whose EEPROM
// cannot be read or parsed is reported with an unknown board.
func (c *Client) Survey(ctx context.Context) ([]UnitInfo, error) {
	units, err := c.Probe(ctx)
	if err != nil {
		return nil, err
	}
	var out []UnitInfo
	for _, idx := range units {
		info, err := c.describe(ctx, idx)
		if err != nil {
			return nil, fmt.Errorf("hostlink: unit %d: %w", idx, err)
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *Client) describe(ctx context.Context, idx int) (UnitInfo, error) {
	info := UnitInfo{
		Index:     idx,
		Addr:      UnitAddr(idx),
		ZoneBase:  idx * 6,
		ZoneCount: 6,
		Board:     BoardInfo{UnitType: UnitTypeUnknown, BoardRev: "Rev?.?"},
	}

	ver, err := c.ReadVersion(ctx, idx)
	if err != nil {
		return info, err
	}
	info.Firmware = ver
	info.Rev4Plus = ver.EEPROMPresent

	if fs, err := c.ReadFanStatus(ctx, idx); err == nil {
		info.FanMode = fs.Mode
	}
	if p, err := c.ReadPower(ctx, idx); err == nil {
		info.HV2 = p.HV2Present
	}

	if info.Rev4Plus {
		pageCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		data, err := c.ReadEEPROMPage(pageCtx, idx, 0, 0)
		if err == nil {
			board, perr := ParseBoardInfo(data)
			if perr == nil {
				info.Board = board
			} else {
				slog.Warn("hostlink: board info", "unit", idx, "err", perr)
			}
		} else {
			slog.Warn("hostlink: eeprom read", "unit", idx, "err", err)
		}
	}
	info.HasAnalog = info.Board.UnitType == UnitTypeMain
	return info, nil
}

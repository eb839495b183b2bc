package hostlink

import (
	"context"
	"fmt"
	"time"

	"github.com/micro-nova/amplipi-preamp/internal/devices"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

// RelayWait is how long a unit needs to service an EEPROM request: the
// controller handles EEPROM traffic once per 8 ms macro-cycle, plus the
// device's own write cycle.
const RelayWait = 20 * time.Millisecond

// ReadEEPROMPage reads one page of an EEPROM on a unit's internal bus. The
// EEPROM is not reachable from the host; the unit relays the request:
//
//  1. write EEPROM_REQ with page [7:4], device [3:1] and the read bit
//  2. wait for the unit's next EEPROM slot
//  3. read the 16-byte data window
func (c *Client) ReadEEPROMPage(ctx context.Context, unit int, dev, page uint8) ([devices.PageSize]byte, error) {
	var data [devices.PageSize]byte
	if err := c.Write(ctx, unit, regmap.RegEEPROMReq, regmap.PackEEPROMReq(page, dev, true)); err != nil {
		return data, fmt.Errorf("hostlink: eeprom request: %w", err)
	}
	if err := c.wait(ctx, RelayWait); err != nil {
		return data, err
	}
	for i := range data {
		v, err := c.Read(ctx, unit, regmap.RegEEPROMData+byte(i))
		if err != nil {
			return data, fmt.Errorf("hostlink: eeprom data[%d]: %w", i, err)
		}
		data[i] = v
	}
	return data, nil
}

// WriteEEPROMPage stages data in the unit's write buffer and requests the
// page write. It returns once the unit has had time to perform it.
func (c *Client) WriteEEPROMPage(ctx context.Context, unit int, dev, page uint8, data [devices.PageSize]byte) error {
	for i, v := range data {
		if err := c.Write(ctx, unit, regmap.RegEEPROMData+byte(i), v); err != nil {
			return fmt.Errorf("hostlink: eeprom stage[%d]: %w", i, err)
		}
	}
	if err := c.Write(ctx, unit, regmap.RegEEPROMReq, regmap.PackEEPROMReq(page, dev, false)); err != nil {
		return fmt.Errorf("hostlink: eeprom request: %w", err)
	}
	return c.wait(ctx, RelayWait)
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

// UnitType identifies the hardware unit type recorded in the board EEPROM.
type UnitType uint8

const (
	UnitTypeExpansion UnitType = 0x00 // 6 zones, no analog sources
	UnitTypeMain      UnitType = 0x01 // 4 sources, 6 zones
	UnitTypeStreamer  UnitType = 0x02 // no amplifier zones
	UnitTypeUnknown   UnitType = 0xFF // unprogrammed or unreadable
)

func (u UnitType) String() string {
	switch u {
	case UnitTypeExpansion:
		return "expansion"
	case UnitTypeMain:
		return "main"
	case UnitTypeStreamer:
		return "streamer"
	default:
		return "unknown"
	}
}

// BoardInfo is the board identity stored in EEPROM page 0.
type BoardInfo struct {
	Serial   uint32
	UnitType UnitType
	BoardRev string // e.g. "Rev4.A"
}

// ParseBoardInfo decodes EEPROM page 0:
//
//	0x00 format     uint8, must be 0x00
//	0x01 serial     uint32, big-endian
//	0x05 unit type  uint8
//	0x06 board type uint8 (factory use)
//	0x07 board rev  number uint8, letter uint8
func ParseBoardInfo(data [devices.PageSize]byte) (BoardInfo, error) {
	if data[0] != 0x00 {
		return BoardInfo{}, fmt.Errorf("hostlink: unsupported EEPROM format 0x%02x", data[0])
	}
	return BoardInfo{
		Serial:   uint32(data[1])<<24 | uint32(data[2])<<16 | uint32(data[3])<<8 | uint32(data[4]),
		UnitType: UnitType(data[5]),
		BoardRev: fmt.Sprintf("Rev%d.%c", data[7], data[8]),
	}, nil
}

// EncodeBoardInfo is the inverse of ParseBoardInfo, for programming boards.
func EncodeBoardInfo(b BoardInfo) ([devices.PageSize]byte, error) {
	var data [devices.PageSize]byte
	var num int
	var letter rune
	if _, err := fmt.Sscanf(b.BoardRev, "Rev%d.%c", &num, &letter); err != nil {
		return data, fmt.Errorf("hostlink: board rev %q: %w", b.BoardRev, err)
	}
	if num < 0 || num > 255 || letter > 0x7F {
		return data, fmt.Errorf("hostlink: board rev %q out of range", b.BoardRev)
	}
	data[1], data[2], data[3], data[4] = byte(b.Serial>>24), byte(b.Serial>>16), byte(b.Serial>>8), byte(b.Serial)
	data[5] = byte(b.UnitType)
	data[7], data[8] = byte(num), byte(letter)
	return data, nil
}

package devices

import "fmt"

const (
	eepromBase = 0x50
	// PageSize is the EEPROM page and register window size.
	PageSize = 16
	// Pages is the number of addressable pages per device.
	Pages = 16
)

// EEPROMAddr returns the bus address of EEPROM device dev (A2..A0).
func EEPROMAddr(dev uint8) uint16 {
	return eepromBase | uint16(dev&0x07)
}

// ReadPage reads one page: a word-address write followed by a burst read.
func ReadPage(b Bus, dev, page uint8) ([PageSize]byte, error) {
	var out [PageSize]byte
	addr := EEPROMAddr(dev)
	if err := b.SendByte(addr, wordAddr(page)); err != nil {
		return out, fmt.Errorf("devices: eeprom %d page %d: %w", dev, page, err)
	}
	data, err := b.ReadBurst(addr, PageSize)
	if err != nil {
		return out, fmt.Errorf("devices: eeprom %d page %d: %w", dev, page, err)
	}
	copy(out[:], data)
	return out, nil
}

// WritePage writes one page as a single 17-byte burst.
func WritePage(b Bus, dev, page uint8, data [PageSize]byte) error {
	buf := make([]byte, 0, PageSize+1)
	buf = append(buf, wordAddr(page))
	buf = append(buf, data[:]...)
	if err := b.WriteBurst(EEPROMAddr(dev), buf); err != nil {
		return fmt.Errorf("devices: eeprom %d page %d write: %w", dev, page, err)
	}
	return nil
}

func wordAddr(page uint8) byte {
	return (page % Pages) * PageSize
}

// Package devices drives the slave devices on the preamp's internal bus: the
// power-board ADC (one of three variants), the fan potentiometer (one of two
// variants), the board EEPROM and the GPIO expanders.
//
// Discovery is amortised: a device is probed once and then read directly
// until a transfer fails, at which point it is treated as absent again.
package devices

import "errors"

// Bus is the subset of *bus.Bus the device drivers need.
type Bus interface {
	SendByte(dev uint16, v byte) error
	WriteRegister(dev uint16, reg, v byte) error
	ReadRegister(dev uint16, reg byte) (byte, error)
	WriteBurst(dev uint16, p []byte) error
	ReadBurst(dev uint16, n int) ([]byte, error)
}

var (
	// ErrDeviceNotFound means the current discovery candidate did not answer.
	ErrDeviceNotFound = errors.New("devices: device not found")
	// ErrNoSample means a probe succeeded this cycle; the first read happens
	// on the next one.
	ErrNoSample = errors.New("devices: no sample this cycle")
)

package addrassign

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// BaudRate of the address link.
const BaudRate = 9600

// ReadTimeout bounds each read so Receiver.Run notices cancellation.
const ReadTimeout = 100 * time.Millisecond

// OpenPort opens a serial device at 9600 8N1.
func OpenPort(name string) (serial.Port, error) {
	return OpenPortAt(name, BaudRate)
}

// OpenPortAt opens a serial device at baud, 8N1, with ReadTimeout applied.
func OpenPortAt(name string, baud int) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("addrassign: open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("addrassign: %s: read timeout: %w", name, err)
	}
	return port, nil
}

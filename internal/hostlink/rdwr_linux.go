//go:build linux

package hostlink

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/physic"
)

const (
	i2cRdwrIOCTL = 0x0707 // I2C_RDWR: combined transfer with repeated start
	i2cMsgRD     = 0x0001 // i2c_msg flag: read direction
)

// i2cMsg mirrors struct i2c_msg from linux/i2c.h.
type i2cMsg struct {
	addr   uint16
	flags  uint16
	length uint16
	_      uint16
	buf    uintptr
}

// i2cRdwr mirrors struct i2c_rdwr_ioctl_data from linux/i2c-dev.h.
type i2cRdwr struct {
	msgs  uintptr
	nmsgs uint32
}

// RawBus is an i2c.Bus on a Linux i2c-dev node driven with I2C_RDWR only. It
// needs no host driver registry, which makes it usable on kernels periph
// does not recognise.
type RawBus struct {
	mu   sync.Mutex
	path string
	fd   int
}

// OpenRawBus opens path, e.g. /dev/i2c-1.
func OpenRawBus(path string) (*RawBus, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("hostlink: open %s: %w", path, err)
	}
	return &RawBus{path: path, fd: fd}, nil
}

func (b *RawBus) String() string { return b.path }

// SetSpeed is not supported by i2c-dev; the speed is fixed by the device tree.
func (b *RawBus) SetSpeed(f physic.Frequency) error {
	return fmt.Errorf("hostlink: %s: speed is set by the kernel", b.path)
}

// Tx issues w then r as one combined transfer.
func (b *RawBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return fmt.Errorf("hostlink: %s closed", b.path)
	}
	msgs := make([]i2cMsg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, length: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, flags: i2cMsgRD, length: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}
	rdwr := i2cRdwr{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), i2cRdwrIOCTL, uintptr(unsafe.Pointer(&rdwr)))
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	runtime.KeepAlive(msgs)
	if errno != 0 {
		return fmt.Errorf("hostlink: I2C_RDWR 0x%02x: %w", addr, errno)
	}
	return nil
}

// Close releases the device node.
func (b *RawBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

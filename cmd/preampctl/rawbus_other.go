//go:build !linux

package main

import (
	"errors"

	"periph.io/x/conn/v3/i2c"
)

type rawBus interface {
	i2c.Bus
	Close() error
}

func openRawBus(path string) (rawBus, error) {
	return nil, errors.New("-rdwr is only supported on linux")
}

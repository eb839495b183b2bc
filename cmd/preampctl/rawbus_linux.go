//go:build linux

package main

import "github.com/micro-nova/amplipi-preamp/internal/hostlink"

func openRawBus(path string) (*hostlink.RawBus, error) {
	return hostlink.OpenRawBus(path)
}

// Package zeroconf advertises the preamp debug API as an mDNS/DNS-SD service.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD type the debug API registers under.
const ServiceType = "_amplipi-preamp._tcp"

// Service manages mDNS service registration.
type Service struct {
	name string // instance name, e.g. "preamp-0x10"
	port int
	txt  []string
}

// New creates a Service that will advertise port under name with the given
// TXT records.
func New(name string, port int, txt ...string) *Service {
	return &Service{name: name, port: port, txt: txt}
}

// TXT returns the TXT records for a unit running firmware version at bus
// address addr.
func TXT(version string, addr uint8) []string {
	return []string{
		"version=" + version,
		fmt.Sprintf("addr=0x%02X", addr),
	}
}

// Start registers the service and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.port <= 0 || s.port > 0xFFFF {
		return fmt.Errorf("zeroconf: invalid port %d", s.port)
	}
	server, err := zeroconf.Register(s.name, ServiceType, "local.", s.port, s.txt, nil)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service", "name", s.name, "port", s.port, "txt", s.txt)

	<-ctx.Done()

	server.Shutdown()
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}

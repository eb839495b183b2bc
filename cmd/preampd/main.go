// Command preampd runs the preamp controller: the 1 ms scheduler driving the
// internal bus, address assignment over the daisy-chain UART, the register
// link to the host, and the optional debug API. Run with --sim to use a simulated power board.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micro-nova/amplipi-preamp/internal/addrassign"
	"github.com/micro-nova/amplipi-preamp/internal/api"
	"github.com/micro-nova/amplipi-preamp/internal/auth"
	"github.com/micro-nova/amplipi-preamp/internal/config"
	"github.com/micro-nova/amplipi-preamp/internal/events"
	"github.com/micro-nova/amplipi-preamp/internal/identity"
	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/preamp"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
	"github.com/micro-nova/amplipi-preamp/internal/telemetry"
	"github.com/micro-nova/amplipi-preamp/internal/zeroconf"
)

// exitWatchdog is the exit status after a watchdog expiry; the service
// manager restarts the daemon.
const exitWatchdog = 3

func main() {
	var (
		cfgPath = flag.String("config", "/etc/amplipi/preamp.yaml", "board configuration file")
		sim     = flag.Bool("sim", false, "use the simulated power board (overrides sim.enabled)")
		apiAddr = flag.String("api", "", "debug API listen address (overrides api.addr)")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	if *sim {
		cfg.Sim.Enabled = true
	}
	if *apiAddr != "" {
		cfg.API.Addr = *apiAddr
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	closeLog := setupLogging(cfg.Log)
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	version := cfg.Version()
	sh := models.NewShared(models.DefaultState(version))

	var hw *board
	if cfg.Sim.Enabled {
		hw, err = newSimBoard(cfg)
	} else {
		hw, err = newHardware(cfg)
	}
	if err != nil {
		slog.Error("board initialization failed", "err", err)
		os.Exit(1)
	}
	defer hw.Close()

	addrs, forward, err := startAddressing(ctx, cfg, hw)
	if err != nil {
		slog.Error("address assignment", "err", err)
		os.Exit(1)
	}

	hub := events.NewHub()
	sched := preamp.New(cfg.Scheduler(), preamp.Deps{
		Bus:       hw.bus,
		State:     sh,
		Audio:     hw.audio,
		Addresses: addrs,
		Forward:   forward,
		Expansion: hw.expansion,
		Publish:   hub,
		Reset: func() {
			slog.Error("watchdog expired, exiting")
			os.Exit(exitWatchdog)
		},
	})
	sched.Init()
	slog.Info("preamp started",
		"firmware", identity.String(version),
		"bus", hw.bus,
		"sim", cfg.Sim.Enabled,
	)

	port := regmap.NewHostPort(sh)
	if err := startLink(ctx, cfg.Link, port, hw); err != nil {
		slog.Error("register link", "err", err)
		os.Exit(1)
	}
	if cfg.Sim.Enabled {
		go runSimHost(ctx, sh, port)
	}
	if cfg.MQTT.Broker != "" {
		go runTelemetry(ctx, cfg.MQTT, hub)
	}

	var srv *http.Server
	if cfg.API.Addr != "" {
		srv, err = startAPI(ctx, cfg, sh, hub)
		if err != nil {
			slog.Error("debug API", "err", err)
			os.Exit(1)
		}
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduler stopped", "err", err)
	}
	slog.Info("shutting down...")

	if srv != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Warn("server shutdown error", "err", err)
		}
	}
	slog.Info("shutdown complete")
}

// startAddressing opens the address assignment UARTs. With a preset
// simulator address the upstream port is not used.
func startAddressing(ctx context.Context, cfg config.Config, hw *board) (<-chan uint8, preamp.Forwarder, error) {
	var forward preamp.Forwarder
	if cfg.Serial.Downstream != "" {
		port, err := addrassign.OpenPort(cfg.Serial.Downstream)
		if err != nil {
			return nil, nil, err
		}
		hw.closers = append(hw.closers, port)
		forward = addrassign.Forwarder{W: port}
	}

	if cfg.Sim.Enabled && cfg.Sim.Addr != 0 {
		ch := make(chan uint8, 1)
		ch <- cfg.Sim.Addr
		return ch, forward, nil
	}

	port, err := addrassign.OpenPort(cfg.Serial.Upstream)
	if err != nil {
		if cfg.Sim.Enabled {
			slog.Warn("no upstream UART, waiting for an address forever", "err", err)
			return nil, forward, nil
		}
		return nil, nil, err
	}
	hw.closers = append(hw.closers, port)
	rx := addrassign.NewReceiver()
	go func() {
		if err := rx.Run(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("address receiver stopped", "err", err)
		}
	}()
	return rx.Addresses(), forward, nil
}

func startAPI(ctx context.Context, cfg config.Config, sh *models.Shared, hub *events.Hub) (*http.Server, error) {
	authSvc, err := auth.NewService(cfg.API.Keys)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", cfg.API.Addr)
	if err != nil {
		authSvc.Close()
		return nil, err
	}
	srv := &http.Server{
		Handler:     api.NewRouter(sh, authSvc, hub),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		defer authSvc.Close()
		slog.Info("debug API listening", "addr", ln.Addr(), "open", authSvc.IsOpenMode())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
		}
	}()

	if cfg.API.MDNS {
		port := ln.Addr().(*net.TCPAddr).Port
		go advertise(ctx, sh, port)
	}
	return srv, nil
}

// advertise registers the debug API once the unit knows its bus address.
func advertise(ctx context.Context, sh *models.Shared, port int) {
	addr, err := waitForAddress(ctx, sh)
	if err != nil {
		return
	}
	st := sh.Snapshot()
	zc := zeroconf.New(identity.InstanceName(addr), port, zeroconf.TXT(identity.String(st.Version), addr)...)
	if err := zc.Start(ctx); err != nil {
		slog.Warn("zeroconf failed", "err", err, "port", port)
	}
}

// runTelemetry exports published states until ctx is done.
func runTelemetry(ctx context.Context, cfg config.MQTTConfig, hub *events.Hub) {
	client, err := telemetry.Connect(cfg.Broker, cfg.ClientID)
	if err != nil {
		slog.Warn("telemetry disabled", "err", err)
		return
	}
	defer client.Disconnect(250)
	if err := telemetry.New(client, hub, cfg.Topic).Run(ctx, cfg.Heartbeat); err != nil {
		slog.Warn("telemetry stopped", "err", err)
	}
}

// waitForAddress polls until the scheduler adopted a bus address.
func waitForAddress(ctx context.Context, sh *models.Shared) (uint8, error) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		if addr := sh.Snapshot().Addr; addr != 0 {
			return addr, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.C:
		}
	}
}

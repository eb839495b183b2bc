package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/micro-nova/amplipi-preamp/internal/addrassign"
	"github.com/micro-nova/amplipi-preamp/internal/config"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

// startLink serves the register map to the host over the configured link
// transports. Both share one port, so their transactions are serialised.
func startLink(ctx context.Context, cfg config.LinkConfig, port *regmap.HostPort, hw *board) error {
	if cfg.Serial != "" {
		uart, err := addrassign.OpenPortAt(cfg.Serial, cfg.Baud)
		if err != nil {
			return err
		}
		hw.closers = append(hw.closers, uart)
		go func() {
			slog.Info("register link on UART", "dev", cfg.Serial, "baud", cfg.Baud)
			err := regmap.ServeLink(ctx, uart, port)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("register link stopped", "dev", cfg.Serial, "err", err)
			}
		}()
	}
	if cfg.Listen == config.LinkOff {
		return nil
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	go acceptLink(ctx, ln, port)
	return nil
}

func acceptLink(ctx context.Context, ln net.Listener, port *regmap.HostPort) {
	slog.Info("register link listening", "addr", ln.Addr())
	var wg sync.WaitGroup
	defer wg.Wait()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("register link accept failed", "err", err)
			}
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, port)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, port *regmap.HostPort) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	slog.Debug("register link client", "remote", conn.RemoteAddr())
	err := regmap.ServeLink(ctx, conn, port)
	if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		slog.Warn("register link client dropped", "remote", conn.RemoteAddr(), "err", err)
	}
}

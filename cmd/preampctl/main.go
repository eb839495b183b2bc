// Command preampctl talks to the preamp units from the host: status,
// register peek and poke, EEPROM pages, address assignment and reset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/micro-nova/amplipi-preamp/internal/addrassign"
	"github.com/micro-nova/amplipi-preamp/internal/hostlink"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

type command struct {
	usage string
	run   func(ctx context.Context, env *env, args []string) error
}

var commands = map[string]command{
	"status": {"status", cmdStatus},
	"read":   {"read UNIT REG", cmdRead},
	"write":  {"write UNIT REG VALUE", cmdWrite},
	"dump":   {"dump UNIT", cmdDump},
	"vol":    {"vol UNIT ZONE DB", cmdVol},
	"eeprom": {"eeprom [-dev N] read|write|info UNIT [PAGE] [BYTES...]", cmdEEPROM},
	"assign": {"assign [-port DEV] [-addr ADDR]", cmdAssign},
	"reset":  {"reset [-boot] [-nrst PIN] [-boot0 PIN] [-port DEV]", cmdReset},
	"pitemp": {"pitemp [-interval D] [-path FILE]", cmdPiTemp},
}

// env holds the opened bus; commands that do not need it leave it nil.
type env struct {
	client *hostlink.Client
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] COMMAND [ARGS]\n\nflags:\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(flag.CommandLine.Output(), "\ncommands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(flag.CommandLine.Output(), "  %s\n", commands[n].usage)
	}
}

func main() {
	var (
		busName = flag.String("bus", "", "periph I2C bus name (default: first bus)")
		rdwr    = flag.String("rdwr", "", "use this i2c-dev node directly, e.g. /dev/i2c-1")
		link    = flag.String("link", "", "reach the unit over its register link: HOST:PORT or a UART device")
		baud    = flag.Int("baud", 115200, "register link UART baud rate")
		rate    = flag.Int("rate", 500, "maximum register operations per second, 0 = unlimited")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Usage = usage
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := host.Init(); err != nil {
		fail(fmt.Errorf("periph host init: %w", err))
	}

	e := &env{}
	if needsBus(flag.Arg(0)) {
		b, closeBus, err := openBus(*busName, *rdwr, *link, *baud)
		if err != nil {
			fail(err)
		}
		defer closeBus()
		e.client = hostlink.New(b, hostlink.WithRate(*rate))
	}

	if err := cmd.run(ctx, e, flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "usage: %s %s\n", os.Args[0], cmd.usage)
			os.Exit(2)
		}
		fail(err)
	}
}

func needsBus(cmd string) bool {
	return cmd != "assign"
}

func openBus(name, rdwr, link string, baud int) (i2c.Bus, func(), error) {
	if link != "" {
		var rw io.ReadWriteCloser
		var err error
		if strings.HasPrefix(link, "/dev/") {
			rw, err = addrassign.OpenPortAt(link, baud)
		} else {
			rw, err = net.Dial("tcp", link)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("open register link %q: %w", link, err)
		}
		return regmap.NewLinkBus(link, rw), func() { _ = rw.Close() }, nil
	}
	if rdwr != "" {
		b, err := openRawBus(rdwr)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return b, func() { _ = b.Close() }, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "preampctl:", err)
	os.Exit(1)
}

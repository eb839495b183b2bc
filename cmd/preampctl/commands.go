package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/micro-nova/amplipi-preamp/internal/addrassign"
	"github.com/micro-nova/amplipi-preamp/internal/devices"
	"github.com/micro-nova/amplipi-preamp/internal/hostlink"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

var errUsage = errors.New("bad arguments")

func parseUnit(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= hostlink.MaxUnits {
		return 0, fmt.Errorf("unit %q: want 0..%d", s, hostlink.MaxUnits-1)
	}
	return n, nil
}

// parseReg accepts a register number (decimal or 0x hex) or name.
func parseReg(s string) (byte, error) {
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		return byte(n), nil
	}
	if reg, ok := regmap.Lookup(s); ok {
		return reg, nil
	}
	return 0, fmt.Errorf("unknown register %q", s)
}

func parseByte(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("value %q: want 0..255", s)
	}
	return byte(n), nil
}

func regLabel(reg byte) string {
	if name := regmap.Name(reg); name != "" {
		return fmt.Sprintf("%s (0x%02X)", name, reg)
	}
	return fmt.Sprintf("0x%02X", reg)
}

func cmdStatus(ctx context.Context, e *env, args []string) error {
	units, err := e.client.Survey(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for _, u := range units {
		fmt.Fprintf(tw, "unit %d\taddr 0x%02x\t%s %s\tserial %d\tfirmware %s\n",
			u.Index, u.Addr, u.Board.UnitType, u.Board.BoardRev, u.Board.Serial, u.Firmware)
		temps, err := e.client.ReadTemps(ctx, u.Index)
		if err != nil {
			return err
		}
		rails, err := e.client.ReadRails(ctx, u.Index)
		if err != nil {
			return err
		}
		pwr, err := e.client.ReadPower(ctx, u.Index)
		if err != nil {
			return err
		}
		fs, err := e.client.ReadFanStatus(ctx, u.Index)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "\ttemps\tamp1 %s\tamp2 %s\thv1 %s\thv2 %s\tpi %s\n",
			celsius(temps.Amp1), celsius(temps.Amp2), celsius(temps.HV1), celsius(temps.HV2), celsius(temps.Pi))
		fmt.Fprintf(tw, "\trails\thv1 %.2f V\thv2 %.2f V\t9V %s\t12V %s\n",
			rails.HV1.Float(), rails.HV2.Float(), rail(pwr.EN9V, pwr.PG9V), rail(pwr.EN12V, pwr.PG12V))
		fmt.Fprintf(tw, "\tfan\t%s\ton=%t\tduty %.0f%%\t%.2f V\tovertemp=%t fail=%t\n",
			fs.Mode, fs.On, fs.Duty.Float()*100, fs.Volts, fs.OverTemp, fs.Fail)
	}
	return nil
}

func celsius(t interface {
	Valid() bool
	Celsius() float64
}) string {
	if !t.Valid() {
		return "--"
	}
	return fmt.Sprintf("%.1f°C", t.Celsius())
}

func rail(en, pg bool) string {
	switch {
	case !en:
		return "off"
	case pg:
		return "ok"
	default:
		return "bad"
	}
}

func cmdRead(ctx context.Context, e *env, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	unit, err := parseUnit(args[0])
	if err != nil {
		return err
	}
	reg, err := parseReg(args[1])
	if err != nil {
		return err
	}
	v, err := e.client.Read(ctx, unit, reg)
	if err != nil {
		return err
	}
	fmt.Printf("%s = 0x%02X (%d)\n", regLabel(reg), v, v)
	return nil
}

func cmdWrite(ctx context.Context, e *env, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	unit, err := parseUnit(args[0])
	if err != nil {
		return err
	}
	reg, err := parseReg(args[1])
	if err != nil {
		return err
	}
	if !regmap.Writable(reg) {
		return fmt.Errorf("%s is read-only", regLabel(reg))
	}
	v, err := parseByte(args[2])
	if err != nil {
		return err
	}
	return e.client.Write(ctx, unit, reg, v)
}

func cmdDump(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	unit, err := parseUnit(args[0])
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for r := 0; r <= 0xFF; r++ {
		reg := byte(r)
		if !regmap.Defined(reg) {
			continue
		}
		v, err := e.client.Read(ctx, unit, reg)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "0x%02X\t%s\t0x%02X\t%d\n", reg, regmap.Name(reg), v, v)
	}
	return nil
}

func cmdVol(ctx context.Context, e *env, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	unit, err := parseUnit(args[0])
	if err != nil {
		return err
	}
	zone, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("zone %q: %w", args[1], err)
	}
	db, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("volume %q: %w", args[2], err)
	}
	// Zones are numbered from 1 on the front panel.
	return e.client.SetZoneVol(ctx, unit, zone-1, db)
}

func cmdEEPROM(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("eeprom", flag.ContinueOnError)
	dev := fs.Uint("dev", 0, "EEPROM device select, 0..7")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()
	if len(args) < 2 || *dev > 7 {
		return errUsage
	}
	unit, err := parseUnit(args[1])
	if err != nil {
		return err
	}

	switch args[0] {
	case "info":
		page, err := e.client.ReadEEPROMPage(ctx, unit, uint8(*dev), 0)
		if err != nil {
			return err
		}
		info, err := hostlink.ParseBoardInfo(page)
		if err != nil {
			return err
		}
		fmt.Printf("serial %d\ntype %s\nrev %s\n", info.Serial, info.UnitType, info.BoardRev)
		return nil
	case "read":
		if len(args) != 3 {
			return errUsage
		}
		page, err := parsePage(args[2])
		if err != nil {
			return err
		}
		data, err := e.client.ReadEEPROMPage(ctx, unit, uint8(*dev), page)
		if err != nil {
			return err
		}
		fmt.Printf("%02x: % x\n", int(page)*devices.PageSize, data[:])
		return nil
	case "write":
		if len(args) < 4 || len(args) > 3+devices.PageSize {
			return errUsage
		}
		page, err := parsePage(args[2])
		if err != nil {
			return err
		}
		var data [devices.PageSize]byte
		for i, s := range args[3:] {
			if data[i], err = parseByte(s); err != nil {
				return err
			}
		}
		return e.client.WriteEEPROMPage(ctx, unit, uint8(*dev), page, data)
	}
	return errUsage
}

func parsePage(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || n > 15 {
		return 0, fmt.Errorf("page %q: want 0..15", s)
	}
	return uint8(n), nil
}

func cmdAssign(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("assign", flag.ContinueOnError)
	port := fs.String("port", "/dev/serial0", "UART to unit 0")
	addr := fs.Uint("addr", hostlink.MainUnitAddr, "8-bit address for unit 0")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr == 0 || *addr > 0xFE || *addr&1 != 0 {
		return fmt.Errorf("address 0x%02x is not an 8-bit write address", *addr)
	}
	p, err := addrassign.OpenPort(*port)
	if err != nil {
		return err
	}
	defer p.Close()
	return hostlink.AssignAddress(p, uint8(*addr))
}

func cmdReset(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	boot := fs.Bool("boot", false, "start the bootloader instead of the firmware")
	nrst := fs.String("nrst", "GPIO4", "NRST pin")
	boot0 := fs.String("boot0", "GPIO5", "BOOT0 pin")
	port := fs.String("port", "/dev/serial0", "UART to unit 0, for re-assigning addresses")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pins := hostlink.ResetPins{NRST: gpioreg.ByName(*nrst), Boot0: gpioreg.ByName(*boot0)}
	if pins.NRST == nil || pins.Boot0 == nil {
		return fmt.Errorf("reset pins %s/%s not found", *nrst, *boot0)
	}
	if err := e.client.Reset(ctx, pins, *boot); err != nil {
		return err
	}
	if *boot {
		return nil
	}
	p, err := addrassign.OpenPort(*port)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := hostlink.AssignAddress(p, hostlink.MainUnitAddr); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	units, err := e.client.Probe(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d unit(s) after reset\n", len(units))
	return nil
}

func cmdPiTemp(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("pitemp", flag.ContinueOnError)
	interval := fs.Duration("interval", 5*time.Second, "update interval")
	path := fs.String("path", hostlink.PiTempPath, "thermal zone file, millidegrees")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := e.client.Probe(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "sending", *path, "every", *interval)
	e.client.RunPiTempSender(ctx, *path, *interval)
	return nil
}

package hostlink_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
	"github.com/micro-nova/amplipi-preamp/internal/devices"
	"github.com/micro-nova/amplipi-preamp/internal/fan"
	"github.com/micro-nova/amplipi-preamp/internal/fixed"
	"github.com/micro-nova/amplipi-preamp/internal/hostlink"
	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/preamp"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
	"github.com/micro-nova/amplipi-preamp/internal/sim"
)

var testVersion = models.Version{Major: 1, Minor: 7, Hash: 0xabc1234}

// unit is one simulated preamp: board, controller state and host port.
type unit struct {
	sh    *models.Shared
	port  *regmap.HostPort
	board *sim.Board
	s     *preamp.Scheduler
}

func newUnit(addr uint8, opts sim.BoardOpts) *unit {
	u := &unit{board: sim.NewBoard(opts)}
	st := models.DefaultState(testVersion)
	st.Addr = addr
	u.sh = models.NewShared(st)
	u.port = regmap.NewHostPort(u.sh)
	u.s = preamp.New(preamp.DefaultConfig(), preamp.Deps{
		Bus:   bus.New(u.board.Bus, bus.Recovery{}),
		State: u.sh,
		Audio: sim.NewAudio(),
		Clock: clockwork.NewFakeClock(),
	})
	u.s.Init()
	return u
}

func (u *unit) tick(n int) {
	for i := 0; i < n; i++ {
		u.s.Tick()
	}
}

// chain puts several host ports on one bus; the addressed unit answers.
type chain []i2c.Bus

func (c chain) String() string                    { return "chain" }
func (c chain) SetSpeed(f physic.Frequency) error { return nil }
func (c chain) Tx(addr uint16, w, r []byte) error {
	err := fmt.Errorf("chain: 0x%02x: %w", addr, bus.ErrNotAcknowledged)
	for _, b := range c {
		if err = b.Tx(addr, w, r); !errors.Is(err, bus.ErrNotAcknowledged) {
			return err
		}
	}
	return err
}

func TestDBToAtt(t *testing.T) {
	tests := []struct {
		db  int
		att byte
	}{
		{0, 0},
		{-1, 1},
		{-79, 79},
		{-80, 80}, // mute
		{1, 0},
		{-100, 80},
	}
	for _, tc := range tests {
		if got := hostlink.DBToAtt(tc.db); got != tc.att {
			t.Errorf("DBToAtt(%d) = %d, want %d", tc.db, got, tc.att)
		}
		if tc.db <= 0 && tc.db >= -80 {
			if got := hostlink.AttToDB(tc.att); got != tc.db {
				t.Errorf("AttToDB(%d) = %d, want %d", tc.att, got, tc.db)
			}
		}
	}
	if got := hostlink.AttToDB(200); got != -80 {
		t.Errorf("AttToDB(200) = %d, want -80", got)
	}
}

func TestUnitAddr(t *testing.T) {
	for unit, want := range []uint16{0x08, 0x10, 0x18, 0x20, 0x28, 0x30} {
		if got := hostlink.UnitAddr(unit); got != want {
			t.Errorf("UnitAddr(%d) = 0x%02x, want 0x%02x", unit, got, want)
		}
	}
	if hostlink.MainUnitAddr>>1 != hostlink.UnitAddr(0) {
		t.Errorf("MainUnitAddr 0x%02x does not map to unit 0", hostlink.MainUnitAddr)
	}
}

func TestReadStatus(t *testing.T) {
	u := newUnit(0x10, sim.BoardOpts{})
	u.sh.Update(func(st *models.State) {
		st.Sensors = models.Sensors{
			HV1:      fixed.VoltsFromFloat(24),
			HV2:      fixed.VoltsFromFloat(30.5),
			Amp1Temp: fixed.Temp8FromCelsius(41),
			Amp2Temp: fixed.TempDisconnected,
			HV1Temp:  fixed.Temp8FromCelsius(35.5),
			HV2Temp:  fixed.TempShorted,
			PiTemp:   fixed.Temp8FromCelsius(50),
		}
		st.Power = models.Power{PG9V: true, EN9V: true, EN12V: true, HV2Present: true}
		st.Fan = models.Fan{Mode: fan.Linear, On: true, OverTemp: true, Duty: 64, Volts: fixed.FanVolts(7.5, 4)}
	})
	c := hostlink.New(u.port, hostlink.WithRate(0))
	ctx := context.Background()

	temps, err := c.ReadTemps(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	wantTemps := hostlink.Temps{
		Amp1: fixed.Temp8FromCelsius(41),
		Amp2: fixed.TempDisconnected,
		HV1:  fixed.Temp8FromCelsius(35.5),
		HV2:  fixed.TempShorted,
		Pi:   fixed.Temp8FromCelsius(50),
	}
	if diff := cmp.Diff(wantTemps, temps); diff != "" {
		t.Errorf("temps (-want +got):\n%s", diff)
	}
	if temps.Amp2.Valid() || temps.HV2.Valid() {
		t.Error("sentinels decoded as valid readings")
	}

	rails, err := c.ReadRails(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rails.HV1.Float() != 24 || rails.HV2.Float() != 30.5 {
		t.Errorf("rails = %v V, %v V", rails.HV1.Float(), rails.HV2.Float())
	}

	pw, err := c.ReadPower(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(models.Power{PG9V: true, EN9V: true, EN12V: true, HV2Present: true}, pw); diff != "" {
		t.Errorf("power (-want +got):\n%s", diff)
	}

	fs, err := c.ReadFanStatus(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := hostlink.FanStatus{Mode: fan.Linear, On: true, OverTemp: true, Duty: 64, Volts: 7.5}
	if diff := cmp.Diff(want, fs); diff != "" {
		t.Errorf("fan (-want +got):\n%s", diff)
	}
}

func TestReadVersion(t *testing.T) {
	u := newUnit(0x10, sim.BoardOpts{})
	u.sh.Update(func(st *models.State) {
		st.Version.Dirty = true
		st.EEPROM.Present = true
	})
	c := hostlink.New(u.port, hostlink.WithRate(0))
	v, err := c.ReadVersion(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := hostlink.Version{Major: 1, Minor: 7, Hash: 0xabc1234, Dirty: true, EEPROMPresent: true}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("version (-want +got):\n%s", diff)
	}
	if got := v.String(); got != "1.7-abc1234-dirty" {
		t.Errorf("String() = %q", got)
	}
}

func TestSetters(t *testing.T) {
	u := newUnit(0x10, sim.BoardOpts{})
	c := hostlink.New(u.port, hostlink.WithRate(0))
	ctx := context.Background()

	steps := []struct {
		name string
		do   func() error
	}{
		{"source types", func() error { return c.SetSourceTypes(ctx, 0, [4]bool{true, false, true, false}) }},
		{"zone sources", func() error { return c.SetZoneSources(ctx, 0, [6]uint8{0, 1, 2, 3, 2, 1}) }},
		{"mutes", func() error { return c.SetZoneMutes(ctx, 0, [6]bool{false, true, false, true, false, true}) }},
		{"amp enables", func() error { return c.SetAmpEnables(ctx, 0, [6]bool{true, true, true, false, false, false}) }},
		{"zone 3 volume", func() error { return c.SetZoneVol(ctx, 0, 2, -25) }},
		{"fan forced", func() error { return c.SetFanForced(ctx, 0, true) }},
		{"led override", func() error { return c.SetLEDOverride(ctx, 0, true) }},
		{"led state", func() error {
			return c.SetLEDState(ctx, 0, hostlink.LEDState{Green: true, Zones: [6]bool{true, false, false, false, false, true}})
		}},
		{"expansion", func() error { return c.SetExpansion(ctx, 0, models.Expansion{Boot0: true}) }},
		{"pi temp", func() error { return c.WritePiTemp(ctx, 0, fixed.Temp8FromCelsius(60)) }},
	}
	for _, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
	}

	st := u.sh.Snapshot()
	a := st.Audio
	if a.Digital != [4]bool{true, false, true, false} {
		t.Errorf("digital = %v", a.Digital)
	}
	if a.ZoneSource != [6]uint8{0, 1, 2, 3, 2, 1} {
		t.Errorf("zone sources = %v", a.ZoneSource)
	}
	if a.Mute != [6]bool{false, true, false, true, false, true} {
		t.Errorf("mutes = %v", a.Mute)
	}
	if a.AmpEnable != [6]bool{true, true, true, false, false, false} {
		t.Errorf("amp enables = %v", a.AmpEnable)
	}
	if a.Vol[2] != 25 {
		t.Errorf("zone 3 vol = %d, want 25", a.Vol[2])
	}
	if !st.Fan.Force || st.Fan.Mode != fan.Forced {
		t.Errorf("fan force=%v mode=%s", st.Fan.Force, st.Fan.Mode)
	}
	if !st.LEDs.Override || st.LEDs.Value != 0x01|0x04|0x80 {
		t.Errorf("leds = %+v", st.LEDs)
	}
	if st.Expansion != (models.Expansion{Boot0: true}) {
		t.Errorf("expansion = %+v", st.Expansion)
	}
	if st.Sensors.PiTemp != fixed.Temp8FromCelsius(60) {
		t.Errorf("pi temp = %d", st.Sensors.PiTemp)
	}

	if err := c.SetZoneVol(ctx, 0, 6, 0); err == nil {
		t.Error("SetZoneVol accepted zone 7")
	}
	if err := c.SetFanForced(ctx, 0, false); err != nil {
		t.Fatal(err)
	}
	if st := u.sh.Snapshot(); st.Fan.Force {
		t.Error("force not cleared")
	}
}

func TestProbeChain(t *testing.T) {
	units := chain{
		newUnit(0x10, sim.BoardOpts{}).port,
		newUnit(0x20, sim.BoardOpts{}).port,
		newUnit(0x30, sim.BoardOpts{}).port,
	}
	c := hostlink.New(units, hostlink.WithRate(0))
	got, err := c.Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, got); diff != "" {
		t.Errorf("units (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got, c.Units()); diff != "" {
		t.Errorf("Units() differs from Probe (-probe +units):\n%s", diff)
	}

	// Unit 1 answers at its own address only.
	if _, err := c.Read(context.Background(), 1, regmap.RegVersionMaj); err != nil {
		t.Errorf("unit 1 read: %v", err)
	}
}

func TestProbeUnaddressed(t *testing.T) {
	c := hostlink.New(newUnit(0, sim.BoardOpts{}).port, hostlink.WithRate(0))
	if _, err := c.Probe(context.Background()); err == nil {
		t.Fatal("Probe found a unit that has no address")
	}
	_, err := c.Read(context.Background(), 0, regmap.RegVersionMaj)
	if !errors.Is(err, bus.ErrNotAcknowledged) {
		t.Errorf("read of unaddressed unit = %v, want NACK", err)
	}
}

func TestInvalidUnit(t *testing.T) {
	c := hostlink.New(newUnit(0x10, sim.BoardOpts{}).port)
	if _, err := c.Read(context.Background(), hostlink.MaxUnits, 0); !errors.Is(err, hostlink.ErrInvalidUnit) {
		t.Errorf("Read = %v, want ErrInvalidUnit", err)
	}
	if err := c.Write(context.Background(), -1, 0, 0); !errors.Is(err, hostlink.ErrInvalidUnit) {
		t.Errorf("Write = %v, want ErrInvalidUnit", err)
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	c := hostlink.New(newUnit(0x10, sim.BoardOpts{}).port, hostlink.WithRate(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Read(ctx, 0, regmap.RegPower); err == nil {
		t.Error("Read succeeded with a cancelled context")
	}
}

type result struct {
	data [devices.PageSize]byte
	err  error
}

func TestEEPROMRelay(t *testing.T) {
	u := newUnit(0x10, sim.BoardOpts{EEPROM: true})
	var stored [devices.PageSize]byte
	for i := range stored {
		stored[i] = byte(i * 3)
	}
	u.board.EEPROM.Load(3*devices.PageSize, stored[:])

	fc := clockwork.NewFakeClock()
	c := hostlink.New(u.port, hostlink.WithRate(0), hostlink.WithClock(fc))
	ctx := context.Background()

	res := make(chan result, 1)
	go func() {
		d, err := c.ReadEEPROMPage(ctx, 0, 0, 3)
		res <- result{d, err}
	}()
	fc.BlockUntil(1)
	u.tick(8)
	fc.Advance(hostlink.RelayWait)
	r := <-res
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.data != stored {
		t.Errorf("page 3 = % x, want % x", r.data, stored)
	}

	var page [devices.PageSize]byte
	copy(page[:], "amplipi preamp!!")
	done := make(chan error, 1)
	go func() { done <- c.WriteEEPROMPage(ctx, 0, 0, 5, page) }()
	fc.BlockUntil(1)
	u.tick(8)
	fc.Advance(hostlink.RelayWait)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := u.board.EEPROM.Page(5); got != page {
		t.Errorf("page 5 = %q, want %q", got[:], page[:])
	}
}

func TestEEPROMRelayCancelled(t *testing.T) {
	u := newUnit(0x10, sim.BoardOpts{EEPROM: true})
	c := hostlink.New(u.port, hostlink.WithRate(0), hostlink.WithClock(clockwork.NewFakeClock()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.ReadEEPROMPage(ctx, 0, 0, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadEEPROMPage = %v, want deadline exceeded", err)
	}
}

func TestBoardInfo(t *testing.T) {
	info := hostlink.BoardInfo{Serial: 0x01020304, UnitType: hostlink.UnitTypeMain, BoardRev: "Rev4.A"}
	data, err := hostlink.EncodeBoardInfo(info)
	if err != nil {
		t.Fatal(err)
	}
	want := [devices.PageSize]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x01, 0x00, 4, 'A'}
	if data != want {
		t.Errorf("encoded = % x, want % x", data, want)
	}
	got, err := hostlink.ParseBoardInfo(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(info, got); diff != "" {
		t.Errorf("board info (-want +got):\n%s", diff)
	}

	var erased [devices.PageSize]byte
	for i := range erased {
		erased[i] = 0xFF
	}
	if _, err := hostlink.ParseBoardInfo(erased); err == nil {
		t.Error("erased EEPROM parsed")
	}
	if _, err := hostlink.EncodeBoardInfo(hostlink.BoardInfo{BoardRev: "4A"}); err == nil {
		t.Error("malformed revision encoded")
	}
}

func TestUnitTypeString(t *testing.T) {
	for typ, want := range map[hostlink.UnitType]string{
		hostlink.UnitTypeExpansion: "expansion",
		hostlink.UnitTypeMain:      "main",
		hostlink.UnitTypeStreamer:  "streamer",
		hostlink.UnitTypeUnknown:   "unknown",
	} {
		if got := typ.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", typ, got, want)
		}
	}
}

func TestSurvey(t *testing.T) {
	u := newUnit(0x10, sim.BoardOpts{EEPROM: true})
	page0, err := hostlink.EncodeBoardInfo(hostlink.BoardInfo{Serial: 42, UnitType: hostlink.UnitTypeMain, BoardRev: "Rev4.B"})
	if err != nil {
		t.Fatal(err)
	}
	u.board.EEPROM.Load(0, page0[:])
	u.tick(5) // first EEPROM read detects the device

	fc := clockwork.NewFakeClock()
	c := hostlink.New(u.port, hostlink.WithRate(0), hostlink.WithClock(fc))
	type surveyResult struct {
		units []hostlink.UnitInfo
		err   error
	}
	res := make(chan surveyResult, 1)
	go func() {
		units, err := c.Survey(context.Background())
		res <- surveyResult{units, err}
	}()
	fc.BlockUntil(1)
	u.tick(8)
	fc.Advance(hostlink.RelayWait)
	r := <-res
	if r.err != nil {
		t.Fatal(r.err)
	}
	want := []hostlink.UnitInfo{{
		Index:     0,
		Addr:      0x08,
		Board:     hostlink.BoardInfo{Serial: 42, UnitType: hostlink.UnitTypeMain, BoardRev: "Rev4.B"},
		ZoneBase:  0,
		ZoneCount: 6,
		HasAnalog: true,
		Rev4Plus:  true,
		Firmware:  hostlink.Version{Major: 1, Minor: 7, Hash: 0xabc1234, EEPROMPresent: true},
		FanMode:   fan.HardwareAuto,
		HV2:       false,
	}}
	if diff := cmp.Diff(want, r.units); diff != "" {
		t.Errorf("survey (-want +got):\n%s", diff)
	}
}

func TestSurveyWithoutEEPROM(t *testing.T) {
	u := newUnit(0x10, sim.BoardOpts{})
	u.tick(5)
	c := hostlink.New(u.port, hostlink.WithRate(0))
	units, err := c.Survey(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Rev4Plus || units[0].Board.UnitType != hostlink.UnitTypeUnknown {
		t.Errorf("survey = %+v", units)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type pin struct {
	name string
	rec  *recorder
}

func (p pin) Out(l gpio.Level) error {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	p.rec.events = append(p.rec.events, fmt.Sprintf("%s=%s", p.name, l))
	return nil
}

func TestReset(t *testing.T) {
	rec := &recorder{}
	pins := hostlink.ResetPins{NRST: pin{"nrst", rec}, Boot0: pin{"boot0", rec}}
	fc := clockwork.NewFakeClock()
	c := hostlink.New(chain{}, hostlink.WithClock(fc))

	done := make(chan error, 1)
	go func() { done <- c.Reset(context.Background(), pins, true) }()

	fc.BlockUntil(1)
	if diff := cmp.Diff([]string{"nrst=Low", "boot0=High"}, rec.log()); diff != "" {
		t.Errorf("during hold (-want +got):\n%s", diff)
	}
	fc.Advance(hostlink.ResetHold)
	fc.BlockUntil(1)
	if diff := cmp.Diff([]string{"nrst=Low", "boot0=High", "nrst=High"}, rec.log()); diff != "" {
		t.Errorf("after release (-want +got):\n%s", diff)
	}
	fc.Advance(hostlink.ResetSettle)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestReadPiTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "temp")
	if err := os.WriteFile(path, []byte("45500\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := hostlink.ReadPiTemp(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != fixed.Temp8FromCelsius(45.5) {
		t.Errorf("ReadPiTemp = %d (%.1f °C), want 45.5 °C", got, got.Celsius())
	}

	if _, err := hostlink.ReadPiTemp(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing file read")
	}
	if err := os.WriteFile(path, []byte("hot"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := hostlink.ReadPiTemp(path); err == nil {
		t.Error("garbage parsed")
	}
}

func TestPiTempSender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	if err := os.WriteFile(path, []byte("52000"), 0o644); err != nil {
		t.Fatal(err)
	}
	u := newUnit(0x10, sim.BoardOpts{})
	fc := clockwork.NewFakeClock()
	c := hostlink.New(u.port, hostlink.WithRate(0), hostlink.WithClock(fc))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := c.Probe(ctx); err != nil {
		t.Fatal(err)
	}

	stopped := make(chan struct{})
	go func() {
		c.RunPiTempSender(ctx, path, 5*time.Second)
		close(stopped)
	}()
	fc.BlockUntil(1)
	fc.Advance(5 * time.Second)

	want := fixed.Temp8FromCelsius(52)
	deadline := time.Now().Add(2 * time.Second)
	for u.sh.Snapshot().Sensors.PiTemp != want {
		if time.Now().After(deadline) {
			t.Fatalf("PI_TEMP = %d, want %d", u.sh.Snapshot().Sensors.PiTemp, want)
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-stopped
}

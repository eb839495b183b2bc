package regmap_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
	"github.com/micro-nova/amplipi-preamp/internal/fan"
	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
	"github.com/micro-nova/amplipi-preamp/internal/sim"
)

const (
	unitAddr = 0x10 // as assigned over the UART
	busAddr  = 0x08 // 7-bit
)

func newState() models.State {
	st := models.DefaultState(models.Version{Major: 1, Minor: 9, Hash: 0xABCDEF1})
	st.Addr = unitAddr
	return st
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		reg  byte
		mask byte // bits the register stores
	}{
		{regmap.RegSrcAD, 0x0F},
		{regmap.RegZone321, 0x3F},
		{regmap.RegZone654, 0x3F},
		{regmap.RegMute, 0x3F},
		{regmap.RegAmpEn, 0x3F},
		{regmap.RegVolZone1, 0xFF},
		{regmap.RegVolZone1 + 3, 0xFF},
		{regmap.RegVolZone6, 0xFF},
		{regmap.RegLEDCtrl, 0x01},
		{regmap.RegLEDVal, 0xFF},
		{regmap.RegExpansion, 0x07},
		{regmap.RegPiTemp, 0xFF},
	}
	for _, tc := range tests {
		st := newState()
		for v := 0; v < 256; v++ {
			in := byte(v) & tc.mask
			regmap.Write(&st, tc.reg, in)
			if got := regmap.Read(&st, tc.reg); got != in {
				t.Errorf("reg 0x%02x: wrote 0x%02x, read 0x%02x", tc.reg, in, got)
				break
			}
		}
	}
}

func TestUndefinedAddresses(t *testing.T) {
	for r := 0; r < 256; r++ {
		reg := byte(r)
		if regmap.Defined(reg) {
			continue
		}
		st := newState()
		before := st
		if got := regmap.Read(&st, reg); got != regmap.Undefined {
			t.Errorf("Read(0x%02x) = 0x%02x, want 0xFF", reg, got)
		}
		regmap.Write(&st, reg, 0x5A)
		if diff := cmp.Diff(before, st); diff != "" {
			t.Errorf("Write(0x%02x) changed state (-before +after):\n%s", reg, diff)
		}
	}
	for _, reg := range []byte{0x19, 0x1E, 0x30, 0x80, 0xEF} {
		if regmap.Defined(reg) {
			t.Errorf("0x%02x reported defined", reg)
		}
	}
}

func TestReadOnlyIgnoresWrites(t *testing.T) {
	for r := 0; r < 256; r++ {
		reg := byte(r)
		if !regmap.Defined(reg) || regmap.Writable(reg) {
			continue
		}
		st := newState()
		st.Sensors.HV1 = 96
		st.Sensors.Amp1Temp = 20
		before := st
		regmap.Write(&st, reg, 0x33)
		if diff := cmp.Diff(before, st); diff != "" {
			t.Errorf("write to read-only 0x%02x changed state (-before +after):\n%s", reg, diff)
		}
	}
}

func TestZoneMuxLayout(t *testing.T) {
	st := newState()
	regmap.Write(&st, regmap.RegZone321, regmap.PackZones(1, 2, 3))
	regmap.Write(&st, regmap.RegZone654, 0b00_11_01_10)
	want := [models.NumZones]uint8{1, 2, 3, 2, 1, 3}
	if st.Audio.ZoneSource != want {
		t.Errorf("ZoneSource = %v, want %v", st.Audio.ZoneSource, want)
	}
}

func TestFansForceIsSticky(t *testing.T) {
	st := newState()
	st.Sensors.Amp1Temp = 30
	regmap.Write(&st, regmap.RegFans, byte(fan.Forced))
	if !st.Fan.Force || st.Fan.Mode != fan.Forced {
		t.Fatalf("after force: force=%v mode=%s", st.Fan.Force, st.Fan.Mode)
	}
	if got := regmap.Read(&st, regmap.RegFans) & regmap.FansCtrlMask; got != byte(fan.Forced) {
		t.Errorf("ctrl bits = %d, want 3", got)
	}
	regmap.Write(&st, regmap.RegFans, 0)
	if st.Fan.Force || st.Fan.Mode != fan.PWM {
		t.Errorf("after clear: force=%v mode=%s, want pwm", st.Fan.Force, st.Fan.Mode)
	}
}

func TestStatusRegisters(t *testing.T) {
	st := newState()
	st.Power = models.Power{PG9V: true, EN9V: true, PG12V: true, EN12V: true, HV2Present: true}
	st.Fan = models.Fan{Mode: fan.Linear, On: true, Fail: true, Duty: 64, Volts: 0x60}
	if got := regmap.Read(&st, regmap.RegPower); got != 0b0100_1111 {
		t.Errorf("POWER = %08b", got)
	}
	if got := regmap.Read(&st, regmap.RegFans); got != 0b0001_0110 {
		t.Errorf("FANS = %08b", got)
	}
	if got := regmap.Read(&st, regmap.RegFanDuty); got != 64 {
		t.Errorf("FAN_DUTY = %d", got)
	}
	if got := regmap.UnpackPower(regmap.PackPower(st.Power)); got != st.Power {
		t.Errorf("power round trip = %+v", got)
	}
}

func TestEEPROMWindow(t *testing.T) {
	st := newState()
	st.EEPROM.ReadBuf[3] = 0x42

	regmap.Write(&st, regmap.RegEEPROMData+3, 0x99)
	if got := regmap.Read(&st, regmap.RegEEPROMData+3); got != 0x42 {
		t.Errorf("window read = 0x%02x, want read buffer 0x42 before commit", got)
	}
	if st.EEPROM.WriteBuf[3] != 0x99 {
		t.Errorf("write buffer = 0x%02x, want 0x99", st.EEPROM.WriteBuf[3])
	}

	regmap.Write(&st, regmap.RegEEPROMReq, regmap.PackEEPROMReq(5, 0, false))
	if !st.EEPROM.WritePending || st.EEPROM.ReadPending {
		t.Errorf("write request: pending write=%v read=%v", st.EEPROM.WritePending, st.EEPROM.ReadPending)
	}
	regmap.Write(&st, regmap.RegEEPROMReq, regmap.PackEEPROMReq(5, 0, true))
	if !st.EEPROM.ReadPending || st.EEPROM.Page != 5 || !st.EEPROM.Read {
		t.Errorf("read request: %+v", st.EEPROM)
	}
}

func TestEEPROMRequestLayout(t *testing.T) {
	v := regmap.PackEEPROMReq(0xA, 3, true)
	if v != 0xA7 {
		t.Errorf("PackEEPROMReq = 0x%02x, want 0xa7", v)
	}
	page, dev, read := regmap.UnpackEEPROMReq(v)
	if page != 0xA || dev != 3 || !read {
		t.Errorf("UnpackEEPROMReq = %d, %d, %v", page, dev, read)
	}
}

func TestPresenceBitmap(t *testing.T) {
	board := sim.NewBoard(sim.BoardOpts{ADCAddr: sim.ADC6AAddr, EEPROM: true})
	b := bus.New(board.Bus, bus.Recovery{})
	for _, addr := range []uint16{0x20, 0x21, 0x2F, 0x50, 0x64, 0x65} {
		b.SendByte(addr, 0)
	}

	st := newState()
	st.Presence = b.PresenceBitmap()
	present := map[uint16]bool{0x20: true, 0x21: true, 0x50: true, 0x65: true}
	for addr := uint16(0x20); addr < 0x70; addr++ {
		reg := byte(regmap.RegIntI2C + (addr>>3 - 4))
		got := regmap.Read(&st, reg)&(1<<(addr&7)) != 0
		if got != present[addr] {
			t.Errorf("device 0x%02x: presence bit %v, want %v", addr, got, present[addr])
		}
	}
}

func TestVersionRegisters(t *testing.T) {
	st := newState()
	st.Version.Dirty = true
	st.EEPROM.Present = true
	var b [4]byte
	for i := range b {
		b[i] = regmap.Read(&st, regmap.RegGitHash65+byte(i))
	}
	hash, eeprom, dirty := regmap.UnpackVersion(b)
	if hash != 0xABCDEF1 || !eeprom || !dirty {
		t.Errorf("UnpackVersion = %#x, %v, %v", hash, eeprom, dirty)
	}
	if got := regmap.Read(&st, regmap.RegVersionMaj); got != 1 {
		t.Errorf("VERSION_MAJOR = %d", got)
	}
}

func TestHostPortTransactions(t *testing.T) {
	sh := models.NewShared(newState())
	port := regmap.NewHostPort(sh)

	if err := port.Tx(busAddr, []byte{regmap.RegVolZone1, 40}, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := make([]byte, 1)
	if err := port.Tx(busAddr, []byte{regmap.RegVolZone1}, r); err != nil {
		t.Fatalf("read: %v", err)
	}
	if r[0] != 40 {
		t.Errorf("read back %d, want 40", r[0])
	}

	if err := port.Tx(0x09, []byte{regmap.RegVolZone1}, r); !errors.Is(err, bus.ErrNotAcknowledged) {
		t.Errorf("wrong address: err = %v, want ErrNotAcknowledged", err)
	}
	if err := port.Tx(busAddr, []byte{regmap.RegVolZone1, 1, 2}, nil); !errors.Is(err, bus.ErrBusCondition) {
		t.Errorf("two data bytes: err = %v, want ErrBusCondition", err)
	}
	if err := port.Tx(busAddr, []byte{regmap.RegVolZone1}, make([]byte, 2)); !errors.Is(err, bus.ErrBusCondition) {
		t.Errorf("two read bytes: err = %v, want ErrBusCondition", err)
	}
	if err := port.Tx(busAddr, nil, r); !errors.Is(err, bus.ErrBusCondition) {
		t.Errorf("read without register: err = %v, want ErrBusCondition", err)
	}
	// The first data byte of the rejected transaction still landed.
	if got := sh.Snapshot().Audio.Vol[0]; got != 1 {
		t.Errorf("vol = %d, want 1", got)
	}
}

func TestUnassignedUnitNACKs(t *testing.T) {
	st := newState()
	st.Addr = 0
	port := regmap.NewHostPort(models.NewShared(st))
	if err := port.Tx(0x00, []byte{regmap.RegVersionMaj}, make([]byte, 1)); !errors.Is(err, bus.ErrNotAcknowledged) {
		t.Errorf("err = %v, want ErrNotAcknowledged", err)
	}
}

func TestEnginePhases(t *testing.T) {
	sh := models.NewShared(newState())
	eng := regmap.NewEngine(sh)

	steps := []struct {
		do   func() error
		want regmap.Phase
	}{
		{func() error { return eng.Start(busAddr, false) }, regmap.AddressMatched},
		{func() error { return eng.Receive(regmap.RegMute) }, regmap.RegisterAddressReceived},
		{func() error { return eng.Start(busAddr, true) }, regmap.ReadResponding},
	}
	for i, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := eng.Phase(); got != s.want {
			t.Fatalf("step %d: phase %s, want %s", i, got, s.want)
		}
	}
	if v, err := eng.Respond(); err != nil || v != 0x3F {
		t.Errorf("Respond = 0x%02x, %v, want 0x3f", v, err)
	}
	eng.Stop()
	if eng.Phase() != regmap.Idle {
		t.Errorf("phase after stop = %s", eng.Phase())
	}

	if err := eng.Start(busAddr, true); !errors.Is(err, regmap.ErrNoRegister) {
		t.Errorf("read first: err = %v, want ErrNoRegister", err)
	}
	eng.Stop()
}

func TestTransactionBoundaryConsistency(t *testing.T) {
	sh := models.NewShared(newState())
	reader := regmap.NewEngine(sh)
	port := regmap.NewHostPort(sh)

	// A read transaction is open on the register.
	if err := reader.Start(busAddr, false); err != nil {
		t.Fatal(err)
	}
	reader.Receive(regmap.RegVolZone1 + 1)
	reader.Start(busAddr, true)

	// The next transaction writes it.
	done := make(chan error, 1)
	go func() {
		done <- port.Tx(busAddr, []byte{regmap.RegVolZone1 + 1, 12}, nil)
	}()

	select {
	case err := <-done:
		t.Fatalf("write completed inside an open read transaction: %v", err)
	default:
	}
	v, err := reader.Respond()
	if err != nil {
		t.Fatal(err)
	}
	if v != models.VolMute {
		t.Errorf("read saw %d, want %d from before the write", v, models.VolMute)
	}
	reader.Stop()

	if err := <-done; err != nil {
		t.Fatalf("write: %v", err)
	}
	r := make([]byte, 1)
	if err := port.Tx(busAddr, []byte{regmap.RegVolZone1 + 1}, r); err != nil {
		t.Fatal(err)
	}
	if r[0] != 12 {
		t.Errorf("read after write = %d, want 12", r[0])
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		reg  byte
		name string
	}{
		{regmap.RegSrcAD, "SRC_AD"},
		{regmap.RegVolZone1 + 3, "VOL_ZONE4"},
		{regmap.RegFanVolts, "FAN_VOLTS"},
		{regmap.RegEEPROMData + 15, "EEPROM_DATA15"},
		{regmap.RegIntI2C + 2, "INT_I2C2"},
		{regmap.RegGitHash0D, "GIT_HASH_0_D"},
		{0x19, ""},
		{0x80, ""},
	}
	for _, tt := range tests {
		if got := regmap.Name(tt.reg); got != tt.name {
			t.Errorf("Name(0x%02x) = %q, want %q", tt.reg, got, tt.name)
		}
	}
	for r := 0; r <= 0xFF; r++ {
		name := regmap.Name(byte(r))
		if (name != "") != regmap.Defined(byte(r)) {
			t.Errorf("0x%02x: name %q but Defined=%v", r, name, regmap.Defined(byte(r)))
		}
		if name == "" {
			continue
		}
		if got, ok := regmap.Lookup(strings.ToLower(name)); !ok || got != byte(r) {
			t.Errorf("Lookup(%q) = 0x%02x, %v", name, got, ok)
		}
	}
	if _, ok := regmap.Lookup("NOPE"); ok {
		t.Error("Lookup found an unknown name")
	}
}

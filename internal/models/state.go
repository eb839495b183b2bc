// Package models defines the controller state shared by the scheduler, the
// host-facing register map and the debug API. Every field is a fixed-size
// value, so copying a State copies all of it.
package models

import (
	"sync"

	"github.com/micro-nova/amplipi-preamp/internal/fan"
	"github.com/micro-nova/amplipi-preamp/internal/fixed"
)

const (
	NumSources = 4
	NumZones   = 6

	// VolMute is the attenuation that means muted.
	VolMute uint8 = 80
)

// Audio is the routing and volume state requested by the host.
type Audio struct {
	Digital    [NumSources]bool `json:"digital"`     // source input type, true = digital
	ZoneSource [NumZones]uint8  `json:"zone_source"` // source 0..3 per zone
	Mute       [NumZones]bool   `json:"mute"`
	AmpEnable  [NumZones]bool   `json:"amp_enable"`
	Vol        [NumZones]uint8  `json:"vol"`     // requested attenuation, 0 (max) .. 80 (mute)
	VolOut     [NumZones]uint8  `json:"vol_out"` // attenuation currently applied by the ramp
}

// Power holds the power rail status.
type Power struct {
	PG9V       bool `json:"pg_9v"`
	EN9V       bool `json:"en_9v"`
	PG12V      bool `json:"pg_12v"`
	EN12V      bool `json:"en_12v"`
	PG5VD      bool `json:"pg_5vd"`
	PG5VA      bool `json:"pg_5va"`
	HV2Present bool `json:"hv2_present"`
}

// Fan is the thermal controller's state.
type Fan struct {
	Mode       fan.Mode   `json:"mode"`
	Force      bool       `json:"force"` // sticky host override
	On         bool       `json:"on"`
	OverTemp   bool       `json:"over_temp"`
	Fail       bool       `json:"fail"`
	Duty       fixed.Duty `json:"duty"`
	PotCode    uint8      `json:"pot_code"`
	PotPresent bool       `json:"pot_present"`
	Volts      uint8      `json:"volts"` // UQ4.3 or UQ4.4 depending on the power board
}

// Sensors holds the latest converted measurements.
type Sensors struct {
	HV1      fixed.Volts `json:"hv1"`
	HV2      fixed.Volts `json:"hv2"`
	Amp1Temp fixed.Temp8 `json:"amp1_temp"`
	Amp2Temp fixed.Temp8 `json:"amp2_temp"`
	HV1Temp  fixed.Temp8 `json:"hv1_temp"`
	HV2Temp  fixed.Temp8 `json:"hv2_temp"`
	PiTemp   fixed.Temp8 `json:"pi_temp"` // reported by the host
}

// LEDs is the front-panel LED state.
type LEDs struct {
	Override bool `json:"override"`
	Value    byte `json:"value"` // green b0, red b1, zones b2..b7
}

// Expansion drives the expansion connector of a downstream unit.
type Expansion struct {
	NRST            bool `json:"nrst"`
	Boot0           bool `json:"boot0"`
	UARTPassthrough bool `json:"uart_passthrough"`
}

// EEPROM holds the page relay between the host and the board EEPROM.
type EEPROM struct {
	Page         uint8          `json:"page"`
	Dev          uint8          `json:"dev"`
	Read         bool           `json:"read"`
	WritePending bool           `json:"write_pending"`
	ReadPending  bool           `json:"read_pending"`
	Present      bool           `json:"present"`
	ReadBuf      [PageSize]byte `json:"read_buf"`
	WriteBuf     [PageSize]byte `json:"write_buf"`
}

// PageSize is the EEPROM page size.
const PageSize = 16

// Version identifies the running build.
type Version struct {
	Major uint8  `json:"major"`
	Minor uint8  `json:"minor"`
	Hash  uint32 `json:"hash"` // 28-bit abbreviated commit hash
	Dirty bool   `json:"dirty"`
}

// State is the complete controller state.
type State struct {
	Addr      uint8     `json:"addr"` // host bus address, 0 until assigned
	Audio     Audio     `json:"audio"`
	Power     Power     `json:"power"`
	Fan       Fan       `json:"fan"`
	Sensors   Sensors   `json:"sensors"`
	LEDs      LEDs      `json:"leds"`
	Expansion Expansion `json:"expansion"`
	EEPROM    EEPROM    `json:"eeprom"`
	Version   Version   `json:"version"`
	Presence  [10]byte  `json:"presence"` // internal bus devices 0x20-0x6F
}

// Shared guards a State used by more than one goroutine.
type Shared struct {
	mu sync.Mutex
	st State
}

// NewShared wraps st.
func NewShared(st State) *Shared {
	return &Shared{st: st}
}

// Lock acquires exclusive access and returns the state. The pointer must not
// be used after Unlock.
func (s *Shared) Lock() *State {
	s.mu.Lock()
	return &s.st
}

// Unlock releases the state.
func (s *Shared) Unlock() {
	s.mu.Unlock()
}

// Update runs fn with exclusive access.
func (s *Shared) Update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
}

// Snapshot returns a copy of the state.
func (s *Shared) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

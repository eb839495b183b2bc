// Package preamp is the controller's cooperative scheduler. One Tick runs
// every millisecond; ticks are grouped into 8-tick macro-cycles:
//
//	phase 0      ADC sample, fan control update, potentiometer write
//	phase 4      pending EEPROM page write, else EEPROM read refresh
//	phase 2, 6   LED update
//	other        power GPIO poll
//
// Every tick also kicks the watchdog (first, before any bus traffic), steps
// the volume ramps, writes the actuator GPIO byte if it changed, checks for a
// newly assigned bus address and drives the expansion pins.
package preamp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/micro-nova/amplipi-preamp/internal/bus"
	"github.com/micro-nova/amplipi-preamp/internal/devices"
	"github.com/micro-nova/amplipi-preamp/internal/fan"
	"github.com/micro-nova/amplipi-preamp/internal/fixed"
	"github.com/micro-nova/amplipi-preamp/internal/models"
)

// TickPeriod is the scheduler period.
const TickPeriod = time.Millisecond

// Config holds the scheduler's tunables.
type Config struct {
	Fan              fan.Config
	FanVoltsFracBits uint // 3 or 4, depending on the power board
	WatchdogTimeout  time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Fan:              fan.DefaultConfig(),
		FanVoltsFracBits: 4,
		WatchdogTimeout:  DefaultWatchdogTimeout,
	}
}

// Forwarder passes an address assignment to the next unit in the chain.
type Forwarder interface {
	Forward(addr uint8) error
}

// Publisher receives a state snapshot whenever a macro-cycle changed it.
type Publisher interface {
	Publish(st models.State)
}

// Deps are the scheduler's collaborators. Bus, State and Audio are required.
type Deps struct {
	Bus       *bus.Bus
	State     *models.Shared
	Audio     AudioOut
	Clock     clockwork.Clock
	Addresses <-chan uint8 // completed address frames
	Forward   Forwarder
	Expansion *ExpansionPins
	Publish   Publisher
	Reset     func() // watchdog expiry
}

// Scheduler owns the internal bus and every device on it.
type Scheduler struct {
	cfg   Config
	deps  Deps
	clock clockwork.Clock
	wd    *Watchdog

	tick uint32

	adc    devices.ADC
	pot    *devices.Pot
	fanCtl *fan.Controller
	fanOut fan.Output

	powerReady bool
	ledsReady  bool
	gpioOut    byte
	gpioValid  bool
	ledOut     byte
	ledValid   bool
	audio      audioOut
	eepromRead bool // a read refresh is due
	published  models.State
}

// New returns a scheduler. Call Init before the first Tick.
func New(cfg Config, deps Deps) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	reset := deps.Reset
	if reset == nil {
		reset = func() { slog.Error("preamp: watchdog expired") }
	}
	return &Scheduler{
		cfg:    cfg,
		deps:   deps,
		clock:  deps.Clock,
		wd:     NewWatchdog(deps.Clock, cfg.WatchdogTimeout, reset),
		pot:    devices.NewPot(),
		fanCtl: fan.NewController(cfg.Fan),
	}
}

// Init brings the internal bus to a known state. It runs bus recovery, since
// a reset may have interrupted a transaction, then configures the expanders.
// Failures are logged and retried by the regular phases.
func (s *Scheduler) Init() {
	if err := s.deps.Bus.Recover(); err != nil {
		if errors.Is(err, bus.ErrNoRecoveryLines) {
			slog.Debug("preamp: bus recovery unavailable", "bus", s.deps.Bus)
		} else {
			slog.Warn("preamp: bus recovery failed", "bus", s.deps.Bus, "err", err)
		}
	}
	s.configureExpanders()
	s.eepromRead = true
}

func (s *Scheduler) configureExpanders() {
	if !s.powerReady {
		if err := devices.ConfigurePower(s.deps.Bus); err != nil {
			slog.Debug("preamp: power expander not ready", "err", err)
		} else {
			s.powerReady = true
		}
	}
	if !s.ledsReady {
		if err := devices.ConfigureLEDs(s.deps.Bus); err != nil {
			slog.Debug("preamp: LED expander not ready", "err", err)
		} else {
			s.ledsReady = true
		}
	}
}

// Run ticks every TickPeriod until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	t := s.clock.NewTicker(TickPeriod)
	defer t.Stop()
	defer s.wd.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
			s.Tick()
		}
	}
}

// Ticks returns how many ticks have run.
func (s *Scheduler) Ticks() uint32 {
	return s.tick
}

// Tick runs one scheduler step.
func (s *Scheduler) Tick() {
	s.wd.Kick()

	switch phase := s.tick & 7; phase {
	case 0:
		s.controlCycle()
	case 4:
		s.serviceEEPROM()
	case 2, 6:
		s.updateLEDs()
	default:
		s.pollPower()
	}

	s.updateActuators()
	s.stepAudio()
	s.checkAddress()
	s.updateExpansion()

	if s.tick&7 == 7 {
		s.publish()
	}
	s.tick++
}

// controlCycle samples the ADC, runs the fan controller and writes the
// potentiometer.
func (s *Scheduler) controlCycle() {
	sample, err := s.adc.Poll(s.deps.Bus)
	variant, found := s.adc.Variant()
	if err != nil && !errors.Is(err, devices.ErrNoSample) {
		slog.Debug("preamp: adc", "candidate", s.adc.Candidate(), "err", err)
	}

	st := s.deps.State.Lock()
	if err == nil {
		st.Sensors.HV1 = devices.VoltsFromRaw(sample.HV1)
		st.Sensors.Amp1Temp = devices.TempFromRaw(sample.Amp1Temp)
		st.Sensors.HV1Temp = devices.TempFromRaw(sample.HV1Temp)
		st.Sensors.Amp2Temp = devices.TempFromRaw(sample.Amp2Temp)
		if variant.Channels() == 6 {
			st.Sensors.HV2 = devices.VoltsFromRaw(sample.HV2)
			st.Sensors.HV2Temp = devices.TempFromRaw(sample.HV2Temp)
		}
	} else if !found {
		pi := st.Sensors.PiTemp
		st.Sensors = models.Sensors{PiTemp: pi}
	}
	st.Power.HV2Present = found && variant.Channels() == 6
	st.Presence = s.deps.Bus.PresenceBitmap()

	in := fan.Inputs{
		Forced:     st.Fan.Force,
		PotPresent: s.pot.Present(),
		Amp1:       st.Sensors.Amp1Temp,
		Amp2:       st.Sensors.Amp2Temp,
		HV1:        st.Sensors.HV1Temp,
		HV2:        st.Sensors.HV2Temp,
		Pi:         st.Sensors.PiTemp,
	}
	prevMode := st.Fan.Mode
	s.fanOut = s.fanCtl.Update(in)
	st.Fan.Mode = s.fanOut.Mode
	st.Fan.Duty = s.fanOut.Duty
	st.Fan.PotCode = s.fanOut.PotCode
	st.Fan.OverTemp = s.fanOut.OverTemp
	s.deps.State.Unlock()

	if prevMode != s.fanOut.Mode {
		slog.Info("preamp: fan mode", "from", prevMode, "to", s.fanOut.Mode)
	}

	potErr := s.pot.Write(s.deps.Bus, s.fanOut.PotCode)
	s.deps.State.Update(func(st *models.State) {
		st.Fan.PotPresent = potErr == nil
		st.Fan.Volts = 0
		if potErr == nil {
			st.Fan.Volts = fixed.FanVolts(fan.VoltsFromCode(s.fanOut.PotCode), s.cfg.FanVoltsFracBits)
		}
	})
}

// serviceEEPROM performs a deferred page write, or refreshes the read buffer
// once a read is requested or a write has completed.
func (s *Scheduler) serviceEEPROM() {
	st := s.deps.State.Lock()
	req := st.EEPROM
	st.EEPROM.WritePending = false
	if req.ReadPending {
		s.eepromRead = true
		st.EEPROM.ReadPending = false
	}
	s.deps.State.Unlock()

	if req.WritePending {
		if err := devices.WritePage(s.deps.Bus, req.Dev, req.Page, req.WriteBuf); err != nil {
			slog.Warn("preamp: eeprom write failed", "dev", req.Dev, "page", req.Page, "err", err)
		}
		s.eepromRead = true
		return
	}
	if !s.eepromRead {
		return
	}
	s.eepromRead = false
	data, err := devices.ReadPage(s.deps.Bus, req.Dev, req.Page)
	s.deps.State.Update(func(st *models.State) {
		if req.Dev == 0 {
			st.EEPROM.Present = err == nil
		}
		if err != nil {
			// A failed read must not leave the previous page in the window.
			for i := range data {
				data[i] = 0xFF
			}
		}
		st.EEPROM.ReadBuf = data
	})
	if err != nil {
		slog.Debug("preamp: eeprom read failed", "dev", req.Dev, "page", req.Page, "err", err)
	}
}

// pollPower samples the power expander inputs.
func (s *Scheduler) pollPower() {
	if !s.powerReady {
		s.configureExpanders()
		return
	}
	in, err := devices.ReadPower(s.deps.Bus)
	if err != nil {
		s.powerReady = false
		s.gpioValid = false
		slog.Debug("preamp: power expander read failed", "err", err)
		in = devices.PowerInputs{}
	}
	s.deps.State.Update(func(st *models.State) {
		st.Power.PG9V = in.PG9V
		st.Power.PG12V = in.PG12V
		st.Power.PG5VD = in.PG5VD
		st.Power.PG5VA = in.PG5VA
		st.Fan.Fail = in.FanFail
	})
}

// LED byte bits.
const (
	ledGreen = 1 << 0
	ledRed   = 1 << 1
	ledZone1 = 2
)

// updateLEDs writes the front-panel LEDs if they changed. Unless the host
// overrides them, green shows an assigned host address, red its absence, and
// each zone LED an enabled, unmuted zone.
func (s *Scheduler) updateLEDs() {
	if !s.ledsReady {
		s.configureExpanders()
		return
	}
	snap := s.deps.State.Snapshot()
	leds := snap.LEDs.Value
	if !snap.LEDs.Override {
		leds = ledRed
		if snap.Addr != 0 {
			leds = ledGreen
		}
		for z := 0; z < models.NumZones; z++ {
			if snap.Audio.AmpEnable[z] && !snap.Audio.Mute[z] {
				leds |= 1 << (ledZone1 + z)
			}
		}
	}
	if s.ledValid && leds == s.ledOut {
		return
	}
	if err := devices.WriteLEDs(s.deps.Bus, leds); err != nil {
		s.ledsReady = false
		s.ledValid = false
		slog.Debug("preamp: LED write failed", "err", err)
		return
	}
	s.ledOut, s.ledValid = leds, true
}

// updateActuators writes the power expander output byte when it changes.
func (s *Scheduler) updateActuators() {
	on := s.fanOut.On(s.tick)
	out := devices.PowerOutputs(on)
	s.deps.State.Update(func(st *models.State) {
		st.Fan.On = on
		st.Power.EN9V = devices.EN9V(out)
		st.Power.EN12V = devices.EN12V(out)
	})
	if !s.powerReady || (s.gpioValid && out == s.gpioOut) {
		return
	}
	if err := devices.WritePower(s.deps.Bus, out); err != nil {
		s.gpioValid = false
		slog.Debug("preamp: actuator write failed", "err", err)
		return
	}
	s.gpioOut, s.gpioValid = out, true
}

func (s *Scheduler) stepAudio() {
	st := s.deps.State.Lock()
	next := stepAudio(&st.Audio)
	s.deps.State.Unlock()
	next.apply(s.deps.Audio, s.audio)
	s.audio = next
}

// checkAddress adopts a newly received bus address and passes the next one
// down the chain.
func (s *Scheduler) checkAddress() {
	if s.deps.Addresses == nil {
		return
	}
	select {
	case addr := <-s.deps.Addresses:
		s.deps.State.Update(func(st *models.State) { st.Addr = addr })
		slog.Info("preamp: bus address assigned", "addr", addr)
		if s.deps.Forward != nil {
			if err := s.deps.Forward.Forward(addr + 0x10); err != nil {
				slog.Warn("preamp: address forward failed", "err", err)
			}
		}
	default:
	}
}

func (s *Scheduler) updateExpansion() {
	if s.deps.Expansion == nil {
		return
	}
	exp := s.deps.State.Snapshot().Expansion
	if err := s.deps.Expansion.Apply(exp); err != nil {
		slog.Warn("preamp: expansion pins", "err", err)
	}
}

func (s *Scheduler) publish() {
	if s.deps.Publish == nil {
		return
	}
	snap := s.deps.State.Snapshot()
	if snap == s.published {
		return
	}
	s.published = snap
	s.deps.Publish.Publish(snap)
}

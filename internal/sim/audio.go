package sim

import "sync"

// Audio records what the controller asks of the mux and volume ICs.
type Audio struct {
	mu      sync.Mutex
	source  [6]int
	digital [4]bool
	mute    [6]bool
	standby [6]bool
	vol     [6]uint8
	history [6][]uint8
}

// NewAudio returns outputs at full attenuation, muted and in standby.
func NewAudio() *Audio {
	a := &Audio{}
	for z := range a.vol {
		a.vol[z] = 80
		a.mute[z] = true
		a.standby[z] = true
	}
	return a
}

func (a *Audio) SetSource(zone, src int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.source[zone] = src
}

func (a *Audio) SetSourceType(src int, digital bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.digital[src] = digital
}

func (a *Audio) SetMute(zone int, muted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mute[zone] = muted
}

func (a *Audio) SetStandby(zone int, standby bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.standby[zone] = standby
}

func (a *Audio) SetVolume(zone int, att uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.vol[zone] = att
	a.history[zone] = append(a.history[zone], att)
}

// Volume returns the attenuation last applied to zone.
func (a *Audio) Volume(zone int) uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vol[zone]
}

// History returns every attenuation applied to zone, oldest first.
func (a *Audio) History(zone int) []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint8(nil), a.history[zone]...)
}

// Muted reports the mute state of zone.
func (a *Audio) Muted(zone int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mute[zone]
}

// Source returns the source routed to zone.
func (a *Audio) Source(zone int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.source[zone]
}

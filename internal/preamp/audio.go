package preamp

import "github.com/micro-nova/amplipi-preamp/internal/models"

// AudioOut drives the audio mux and volume ICs.
type AudioOut interface {
	SetSource(zone, src int)
	SetSourceType(src int, digital bool)
	SetMute(zone int, muted bool)
	SetStandby(zone int, standby bool)
	SetVolume(zone int, att uint8)
}

// audioOut is what was last sent to the AudioOut.
type audioOut struct {
	valid   bool
	digital [models.NumSources]bool
	source  [models.NumZones]uint8
	mute    [models.NumZones]bool
	standby [models.NumZones]bool
	vol     [models.NumZones]uint8
}

// rampStep moves cur one dB towards target.
func rampStep(cur, target uint8) uint8 {
	switch {
	case cur < target:
		return cur + 1
	case cur > target:
		return cur - 1
	default:
		return cur
	}
}

// stepAudio advances every zone's volume ramp by one step and returns the
// outputs to apply. Mute and standby are only asserted once the ramp reached
// full attenuation; they are released immediately.
func stepAudio(a *models.Audio) audioOut {
	out := audioOut{valid: true, digital: a.Digital, source: a.ZoneSource}
	for z := 0; z < models.NumZones; z++ {
		a.VolOut[z] = rampStep(a.VolOut[z], a.TargetVol(z))
		out.vol[z] = a.VolOut[z]
		silent := a.VolOut[z] == models.VolMute
		out.mute[z] = a.Mute[z] && silent
		out.standby[z] = !a.AmpEnable[z] && silent
	}
	return out
}

// apply sends the differences between prev and next to dst.
func (next audioOut) apply(dst AudioOut, prev audioOut) {
	for i, d := range next.digital {
		if !prev.valid || prev.digital[i] != d {
			dst.SetSourceType(i, d)
		}
	}
	for z := 0; z < models.NumZones; z++ {
		if !prev.valid || prev.source[z] != next.source[z] {
			dst.SetSource(z, int(next.source[z]))
		}
		// Unmute before the volume rises, mute after it reached the floor.
		if !prev.valid || prev.standby[z] != next.standby[z] {
			dst.SetStandby(z, next.standby[z])
		}
		if !prev.valid || prev.mute[z] != next.mute[z] {
			dst.SetMute(z, next.mute[z])
		}
		if !prev.valid || prev.vol[z] != next.vol[z] {
			dst.SetVolume(z, next.vol[z])
		}
	}
}

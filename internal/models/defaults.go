package models

// DefaultState returns the power-on state: every zone muted at full
// attenuation with its amp disabled, all sources analog, every zone on source
// 0, and any downstream unit running.
func DefaultState(v Version) State {
	var s State
	for z := 0; z < NumZones; z++ {
		s.Audio.Mute[z] = true
		s.Audio.Vol[z] = VolMute
		s.Audio.VolOut[z] = VolMute
	}
	s.Power.EN9V = true
	s.Power.EN12V = true
	s.Expansion.NRST = true // downstream unit out of reset
	s.Version = v
	return s
}

// TargetVol returns the attenuation zone z should ramp towards: the requested
// volume, or mute when the zone is muted or its amp is disabled.
func (a *Audio) TargetVol(z int) uint8 {
	if a.Mute[z] || !a.AmpEnable[z] {
		return VolMute
	}
	if a.Vol[z] > VolMute {
		return VolMute
	}
	return a.Vol[z]
}

// Package regmap is the host-facing register map: the register table, the
// per-register read and write dispatch, and the slave-side transaction engine
// that serves one register byte per host transaction.
package regmap

import (
	"github.com/micro-nova/amplipi-preamp/internal/models"
)

// Register addresses.
const (
	RegSrcAD      = 0x00 // source analog/digital select, 1 bit per source, 1=digital
	RegZone321    = 0x01 // zones 1-3 source routing, 2 bits per zone
	RegZone654    = 0x02 // zones 4-6 source routing, 2 bits per zone
	RegMute       = 0x03 // zone mute bits, 1=muted
	RegAmpEn      = 0x04 // amp enable bits, 1=enabled
	RegVolZone1   = 0x05 // zone 1 attenuation, 0=max, 80=mute
	RegVolZone6   = 0x0A
	RegPower      = 0x0B
	RegFans       = 0x0C
	RegLEDCtrl    = 0x0D
	RegLEDVal     = 0x0E // green b0, red b1, zones b2..b7
	RegExpansion  = 0x0F
	RegHV1Voltage = 0x10 // UQ6.2 volts
	RegAmpTemp1   = 0x11 // UQ7.1+20 °C
	RegHV1Temp    = 0x12
	RegAmpTemp2   = 0x13
	RegPiTemp     = 0x14 // written by the host
	RegFanDuty    = 0x15 // UQ1.7
	RegFanVolts   = 0x16 // UQ4.3 or UQ4.4
	RegHV2Voltage = 0x17
	RegHV2Temp    = 0x18
	// 0x19-0x1E reserved
	RegEEPROMReq     = 0x1F // [7:4]=page, [3:1]=device, [0]=rd/wr_n
	RegEEPROMData    = 0x20 // 16-byte page window
	RegEEPROMDataEnd = 0x2F
	RegIntI2C        = 0xF0 // internal bus presence bitmap
	RegIntI2CEnd     = 0xF9
	RegVersionMaj    = 0xFA
	RegVersionMin    = 0xFB
	RegGitHash65     = 0xFC
	RegGitHash43     = 0xFD
	RegGitHash21     = 0xFE
	RegGitHash0D     = 0xFF // hash[3:0] in [7:4], EEPROM present b1, dirty b0
)

// Undefined is what every undefined address reads as.
const Undefined byte = 0xFF

// POWER register bits.
const (
	PowerPG9V  = 1 << 0
	PowerEN9V  = 1 << 1
	PowerPG12V = 1 << 2
	PowerEN12V = 1 << 3
	PowerPG5VD = 1 << 4
	PowerPG5VA = 1 << 5
	PowerHV2   = 1 << 6
)

// FANS register bits.
const (
	FansCtrlMask = 0x03
	FansOn       = 1 << 2
	FansOvrTmp   = 1 << 3
	FansFail     = 1 << 4
)

// EXPANSION register bits.
const (
	ExpNRST     = 1 << 0
	ExpBoot0    = 1 << 1
	ExpUARTPass = 1 << 2
)

// VolZoneReg returns the volume register of local zone z (0-based).
func VolZoneReg(z int) byte {
	if z < 0 || z >= models.NumZones {
		return RegVolZone1
	}
	return RegVolZone1 + byte(z)
}

// PackZones packs three 2-bit source selections: [1:0], [3:2], [5:4].
func PackZones(a, b, c uint8) byte {
	return (a & 0x3) | (b&0x3)<<2 | (c&0x3)<<4
}

// UnpackZones is the inverse of PackZones.
func UnpackZones(v byte) (a, b, c uint8) {
	return v & 0x3, (v >> 2) & 0x3, (v >> 4) & 0x3
}

// PackBits packs a bool slice into a bitmask, element i at bit i.
func PackBits(bits []bool) byte {
	var v byte
	for i, on := range bits {
		if on {
			v |= 1 << uint(i)
		}
	}
	return v
}

// UnpackBits sets bits[i] from bit i of v.
func UnpackBits(v byte, bits []bool) {
	for i := range bits {
		bits[i] = v&(1<<uint(i)) != 0
	}
}

// PackPower packs the POWER register.
func PackPower(p models.Power) byte {
	var v byte
	for _, f := range []struct {
		on  bool
		bit byte
	}{
		{p.PG9V, PowerPG9V},
		{p.EN9V, PowerEN9V},
		{p.PG12V, PowerPG12V},
		{p.EN12V, PowerEN12V},
		{p.PG5VD, PowerPG5VD},
		{p.PG5VA, PowerPG5VA},
		{p.HV2Present, PowerHV2},
	} {
		if f.on {
			v |= f.bit
		}
	}
	return v
}

// UnpackPower decodes the POWER register.
func UnpackPower(v byte) models.Power {
	return models.Power{
		PG9V:       v&PowerPG9V != 0,
		EN9V:       v&PowerEN9V != 0,
		PG12V:      v&PowerPG12V != 0,
		EN12V:      v&PowerEN12V != 0,
		PG5VD:      v&PowerPG5VD != 0,
		PG5VA:      v&PowerPG5VA != 0,
		HV2Present: v&PowerHV2 != 0,
	}
}

// PackFans packs the FANS status register.
func PackFans(f models.Fan) byte {
	v := byte(f.Mode) & FansCtrlMask
	if f.On {
		v |= FansOn
	}
	if f.OverTemp {
		v |= FansOvrTmp
	}
	if f.Fail {
		v |= FansFail
	}
	return v
}

// PackExpansion packs the EXPANSION register.
func PackExpansion(e models.Expansion) byte {
	return PackBits([]bool{e.NRST, e.Boot0, e.UARTPassthrough})
}

// UnpackExpansion decodes the EXPANSION register.
func UnpackExpansion(v byte) models.Expansion {
	return models.Expansion{
		NRST:            v&ExpNRST != 0,
		Boot0:           v&ExpBoot0 != 0,
		UARTPassthrough: v&ExpUARTPass != 0,
	}
}

// PackEEPROMReq packs an EEPROM request: page [7:4], device [3:1], read [0].
func PackEEPROMReq(page, dev uint8, read bool) byte {
	v := (page&0x0F)<<4 | (dev&0x07)<<1
	if read {
		v |= 1
	}
	return v
}

// UnpackEEPROMReq decodes an EEPROM request.
func UnpackEEPROMReq(v byte) (page, dev uint8, read bool) {
	return v >> 4, (v >> 1) & 0x07, v&1 != 0
}

// PackVersion returns the four git-hash register bytes.
func PackVersion(v models.Version, eepromPresent bool) [4]byte {
	h := v.Hash & 0x0FFFFFFF
	last := byte(h&0x0F) << 4
	if eepromPresent {
		last |= 0x02
	}
	if v.Dirty {
		last |= 0x01
	}
	return [4]byte{byte(h >> 20), byte(h >> 12), byte(h >> 4), last}
}

// UnpackVersion decodes the git-hash register bytes.
func UnpackVersion(b [4]byte) (hash uint32, eepromPresent, dirty bool) {
	hash = uint32(b[0])<<20 | uint32(b[1])<<12 | uint32(b[2])<<4 | uint32(b[3]>>4)
	return hash, b[3]&0x02 != 0, b[3]&0x01 != 0
}

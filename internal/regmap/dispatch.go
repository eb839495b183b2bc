package regmap

import (
	"fmt"
	"strings"

	"github.com/micro-nova/amplipi-preamp/internal/fan"
	"github.com/micro-nova/amplipi-preamp/internal/fixed"
	"github.com/micro-nova/amplipi-preamp/internal/models"
)

// Read returns the value of register reg. It has no side effects.
func Read(st *models.State, reg byte) byte {
	a := &st.Audio
	switch {
	case reg == RegSrcAD:
		return PackBits(a.Digital[:])
	case reg == RegZone321:
		return PackZones(a.ZoneSource[0], a.ZoneSource[1], a.ZoneSource[2])
	case reg == RegZone654:
		return PackZones(a.ZoneSource[3], a.ZoneSource[4], a.ZoneSource[5])
	case reg == RegMute:
		return PackBits(a.Mute[:])
	case reg == RegAmpEn:
		return PackBits(a.AmpEnable[:])
	case reg >= RegVolZone1 && reg <= RegVolZone6:
		return a.Vol[reg-RegVolZone1]
	case reg == RegPower:
		return PackPower(st.Power)
	case reg == RegFans:
		return PackFans(st.Fan)
	case reg == RegLEDCtrl:
		return PackBits([]bool{st.LEDs.Override})
	case reg == RegLEDVal:
		return st.LEDs.Value
	case reg == RegExpansion:
		return PackExpansion(st.Expansion)
	case reg == RegHV1Voltage:
		return byte(st.Sensors.HV1)
	case reg == RegAmpTemp1:
		return byte(st.Sensors.Amp1Temp)
	case reg == RegHV1Temp:
		return byte(st.Sensors.HV1Temp)
	case reg == RegAmpTemp2:
		return byte(st.Sensors.Amp2Temp)
	case reg == RegPiTemp:
		return byte(st.Sensors.PiTemp)
	case reg == RegFanDuty:
		return byte(st.Fan.Duty)
	case reg == RegFanVolts:
		return st.Fan.Volts
	case reg == RegHV2Voltage:
		return byte(st.Sensors.HV2)
	case reg == RegHV2Temp:
		return byte(st.Sensors.HV2Temp)
	case reg == RegEEPROMReq:
		e := &st.EEPROM
		return PackEEPROMReq(e.Page, e.Dev, e.Read)
	case reg >= RegEEPROMData && reg <= RegEEPROMDataEnd:
		return st.EEPROM.ReadBuf[reg-RegEEPROMData]
	case reg >= RegIntI2C && reg <= RegIntI2CEnd:
		return st.Presence[reg-RegIntI2C]
	case reg == RegVersionMaj:
		return st.Version.Major
	case reg == RegVersionMin:
		return st.Version.Minor
	case reg >= RegGitHash65:
		return PackVersion(st.Version, st.EEPROM.Present)[reg-RegGitHash65]
	default:
		return Undefined
	}
}

// Write stores v into the state cell behind reg. Read-only and undefined
// registers ignore the write.
func Write(st *models.State, reg, v byte) {
	a := &st.Audio
	switch {
	case reg == RegSrcAD:
		UnpackBits(v, a.Digital[:])
	case reg == RegZone321:
		a.ZoneSource[0], a.ZoneSource[1], a.ZoneSource[2] = UnpackZones(v)
	case reg == RegZone654:
		a.ZoneSource[3], a.ZoneSource[4], a.ZoneSource[5] = UnpackZones(v)
	case reg == RegMute:
		UnpackBits(v, a.Mute[:])
	case reg == RegAmpEn:
		UnpackBits(v, a.AmpEnable[:])
	case reg >= RegVolZone1 && reg <= RegVolZone6:
		a.Vol[reg-RegVolZone1] = v
	case reg == RegFans:
		st.Fan.Force = v&FansCtrlMask == byte(fan.Forced)
		ampSensor := st.Sensors.Amp1Temp.Valid() || st.Sensors.Amp2Temp.Valid()
		st.Fan.Mode = fan.SelectMode(st.Fan.Force, st.Fan.PotPresent, ampSensor)
	case reg == RegLEDCtrl:
		st.LEDs.Override = v&1 != 0
	case reg == RegLEDVal:
		st.LEDs.Value = v
	case reg == RegExpansion:
		st.Expansion = UnpackExpansion(v)
	case reg == RegPiTemp:
		st.Sensors.PiTemp = fixed.Temp8(v)
	case reg == RegEEPROMReq:
		e := &st.EEPROM
		e.Page, e.Dev, e.Read = UnpackEEPROMReq(v)
		if e.Read {
			e.ReadPending = true
		} else {
			e.WritePending = true
		}
	case reg >= RegEEPROMData && reg <= RegEEPROMDataEnd:
		st.EEPROM.WriteBuf[reg-RegEEPROMData] = v
	}
}

// Writable reports whether reg holds a host-writable cell.
func Writable(reg byte) bool {
	switch {
	case reg <= RegAmpEn, reg >= RegVolZone1 && reg <= RegVolZone6:
		return true
	case reg >= RegFans && reg <= RegExpansion:
		return true
	case reg == RegPiTemp, reg == RegEEPROMReq:
		return true
	case reg >= RegEEPROMData && reg <= RegEEPROMDataEnd:
		return true
	}
	return false
}

// Defined reports whether reg is part of the register map.
func Defined(reg byte) bool {
	switch {
	case reg <= RegHV2Temp:
		return true
	case reg >= RegEEPROMReq && reg <= RegEEPROMDataEnd:
		return true
	case reg >= RegIntI2C:
		return true
	}
	return false
}

var names = map[byte]string{
	RegSrcAD:      "SRC_AD",
	RegZone321:    "ZONE321",
	RegZone654:    "ZONE654",
	RegMute:       "MUTE",
	RegAmpEn:      "AMP_EN",
	RegPower:      "POWER",
	RegFans:       "FANS",
	RegLEDCtrl:    "LED_CTRL",
	RegLEDVal:     "LED_VAL",
	RegExpansion:  "EXPANSION",
	RegHV1Voltage: "HV1_VOLTAGE",
	RegAmpTemp1:   "AMP_TEMP1",
	RegHV1Temp:    "HV1_TEMP",
	RegAmpTemp2:   "AMP_TEMP2",
	RegPiTemp:     "PI_TEMP",
	RegFanDuty:    "FAN_DUTY",
	RegFanVolts:   "FAN_VOLTS",
	RegHV2Voltage: "HV2_VOLTAGE",
	RegHV2Temp:    "HV2_TEMP",
	RegEEPROMReq:  "EEPROM_REQ",
	RegVersionMaj: "VERSION_MAJ",
	RegVersionMin: "VERSION_MIN",
	RegGitHash65:  "GIT_HASH_6_5",
	RegGitHash43:  "GIT_HASH_4_3",
	RegGitHash21:  "GIT_HASH_2_1",
	RegGitHash0D:  "GIT_HASH_0_D",
}

// Name returns the register's name, or "" for undefined addresses.
func Name(reg byte) string {
	switch {
	case !Defined(reg):
		return ""
	case reg >= RegVolZone1 && reg <= RegVolZone6:
		return fmt.Sprintf("VOL_ZONE%d", reg-RegVolZone1+1)
	case reg >= RegEEPROMData && reg <= RegEEPROMDataEnd:
		return fmt.Sprintf("EEPROM_DATA%d", reg-RegEEPROMData)
	case reg >= RegIntI2C && reg <= RegIntI2CEnd:
		return fmt.Sprintf("INT_I2C%d", reg-RegIntI2C)
	}
	return names[reg]
}

// Lookup returns the address of a named register, case-insensitively.
func Lookup(name string) (byte, bool) {
	name = strings.ToUpper(name)
	for r := 0; r <= 0xFF; r++ {
		if Name(byte(r)) == name {
			return byte(r), true
		}
	}
	return 0, false
}

package hostlink

import (
	"context"
	"fmt"

	"github.com/micro-nova/amplipi-preamp/internal/fan"
	"github.com/micro-nova/amplipi-preamp/internal/fixed"
	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

// Temps holds a unit's temperature registers.
type Temps struct {
	Amp1 fixed.Temp8 // zones 1-3 heatsink
	Amp2 fixed.Temp8 // zones 4-6 heatsink
	HV1  fixed.Temp8
	HV2  fixed.Temp8
	Pi   fixed.Temp8
}

// Rails holds the high-voltage rail readings.
type Rails struct {
	HV1 fixed.Volts
	HV2 fixed.Volts
}

// FanStatus is the decoded FANS, FAN_DUTY and FAN_VOLTS registers.
type FanStatus struct {
	Mode     fan.Mode
	On       bool
	OverTemp bool
	Fail     bool
	Duty     fixed.Duty
	Volts    float64
}

// Version is the decoded firmware version block.
type Version struct {
	Major, Minor  uint8
	Hash          uint32
	Dirty         bool
	EEPROMPresent bool
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d-%07x", v.Major, v.Minor, v.Hash)
	if v.Dirty {
		s += "-dirty"
	}
	return s
}

// ReadTemps reads every temperature register of unit.
func (c *Client) ReadTemps(ctx context.Context, unit int) (Temps, error) {
	b, err := c.readN(ctx, unit, regmap.RegAmpTemp1, regmap.RegAmpTemp2, regmap.RegHV1Temp, regmap.RegHV2Temp, regmap.RegPiTemp)
	if err != nil {
		return Temps{}, err
	}
	return Temps{
		Amp1: fixed.Temp8(b[0]),
		Amp2: fixed.Temp8(b[1]),
		HV1:  fixed.Temp8(b[2]),
		HV2:  fixed.Temp8(b[3]),
		Pi:   fixed.Temp8(b[4]),
	}, nil
}

// ReadRails reads the rail voltages of unit.
func (c *Client) ReadRails(ctx context.Context, unit int) (Rails, error) {
	b, err := c.readN(ctx, unit, regmap.RegHV1Voltage, regmap.RegHV2Voltage)
	if err != nil {
		return Rails{}, err
	}
	return Rails{HV1: fixed.Volts(b[0]), HV2: fixed.Volts(b[1])}, nil
}

// ReadPower reads the power rail status of unit.
func (c *Client) ReadPower(ctx context.Context, unit int) (models.Power, error) {
	v, err := c.Read(ctx, unit, regmap.RegPower)
	if err != nil {
		return models.Power{}, err
	}
	return regmap.UnpackPower(v), nil
}

// ReadFanStatus reads the fan registers of unit.
func (c *Client) ReadFanStatus(ctx context.Context, unit int) (FanStatus, error) {
	b, err := c.readN(ctx, unit, regmap.RegFans, regmap.RegFanDuty, regmap.RegFanVolts)
	if err != nil {
		return FanStatus{}, err
	}
	return FanStatus{
		Mode:     fan.Mode(b[0] & regmap.FansCtrlMask),
		On:       b[0]&regmap.FansOn != 0,
		OverTemp: b[0]&regmap.FansOvrTmp != 0,
		Fail:     b[0]&regmap.FansFail != 0,
		Duty:     fixed.Duty(b[1]),
		Volts:    fixed.FanVoltsFloat(b[2], c.fracBits),
	}, nil
}

// ReadVersion reads the firmware version block of unit.
func (c *Client) ReadVersion(ctx context.Context, unit int) (Version, error) {
	b, err := c.readN(ctx, unit,
		regmap.RegVersionMaj, regmap.RegVersionMin,
		regmap.RegGitHash65, regmap.RegGitHash43, regmap.RegGitHash21, regmap.RegGitHash0D)
	if err != nil {
		return Version{}, err
	}
	hash, eeprom, dirty := regmap.UnpackVersion([4]byte{b[2], b[3], b[4], b[5]})
	return Version{Major: b[0], Minor: b[1], Hash: hash, Dirty: dirty, EEPROMPresent: eeprom}, nil
}

// ReadPresence reads the internal bus presence bitmap of unit.
func (c *Client) ReadPresence(ctx context.Context, unit int) ([]byte, error) {
	regs := make([]byte, 0, regmap.RegIntI2CEnd-regmap.RegIntI2C+1)
	for r := regmap.RegIntI2C; r <= regmap.RegIntI2CEnd; r++ {
		regs = append(regs, byte(r))
	}
	return c.readN(ctx, unit, regs...)
}

// SetSourceTypes marks each source digital (true) or analog.
func (c *Client) SetSourceTypes(ctx context.Context, unit int, digital [models.NumSources]bool) error {
	return c.Write(ctx, unit, regmap.RegSrcAD, regmap.PackBits(digital[:]))
}

// SetZoneSources routes each zone to a source (0-3).
func (c *Client) SetZoneSources(ctx context.Context, unit int, src [models.NumZones]uint8) error {
	if err := c.Write(ctx, unit, regmap.RegZone321, regmap.PackZones(src[0], src[1], src[2])); err != nil {
		return err
	}
	return c.Write(ctx, unit, regmap.RegZone654, regmap.PackZones(src[3], src[4], src[5]))
}

// SetZoneMutes sets each zone's mute.
func (c *Client) SetZoneMutes(ctx context.Context, unit int, mutes [models.NumZones]bool) error {
	return c.Write(ctx, unit, regmap.RegMute, regmap.PackBits(mutes[:]))
}

// SetAmpEnables sets each zone's amp enable.
func (c *Client) SetAmpEnables(ctx context.Context, unit int, enables [models.NumZones]bool) error {
	return c.Write(ctx, unit, regmap.RegAmpEn, regmap.PackBits(enables[:]))
}

// SetZoneVol sets a zone's volume in dB, -80 (mute) to 0.
func (c *Client) SetZoneVol(ctx context.Context, unit, zone, db int) error {
	if zone < 0 || zone >= models.NumZones {
		return fmt.Errorf("hostlink: invalid local zone %d", zone)
	}
	return c.Write(ctx, unit, regmap.VolZoneReg(zone), DBToAtt(db))
}

// SetFanForced forces the fans to full speed, or hands control back.
func (c *Client) SetFanForced(ctx context.Context, unit int, forced bool) error {
	var v byte
	if forced {
		v = byte(fan.Forced)
	}
	return c.Write(ctx, unit, regmap.RegFans, v)
}

// LEDState is the front-panel LED pattern used while the override is on.
type LEDState struct {
	Green bool
	Red   bool
	Zones [models.NumZones]bool
}

// SetLEDOverride takes over the LEDs from the controller, or releases them.
func (c *Client) SetLEDOverride(ctx context.Context, unit int, enable bool) error {
	return c.Write(ctx, unit, regmap.RegLEDCtrl, regmap.PackBits([]bool{enable}))
}

// SetLEDState sets the override pattern.
func (c *Client) SetLEDState(ctx context.Context, unit int, leds LEDState) error {
	v := regmap.PackBits([]bool{leds.Green, leds.Red})
	v |= regmap.PackBits(leds.Zones[:]) << 2
	return c.Write(ctx, unit, regmap.RegLEDVal, v)
}

// SetExpansion drives the expansion connector lines of unit.
func (c *Client) SetExpansion(ctx context.Context, unit int, e models.Expansion) error {
	return c.Write(ctx, unit, regmap.RegExpansion, regmap.PackExpansion(e))
}

// WritePiTemp reports the host CPU temperature for the fan controller.
func (c *Client) WritePiTemp(ctx context.Context, unit int, t fixed.Temp8) error {
	return c.Write(ctx, unit, regmap.RegPiTemp, byte(t))
}

// DBToAtt converts a dB volume in [-80, 0] to the register attenuation.
func DBToAtt(db int) byte {
	if db > 0 {
		db = 0
	}
	if db < -int(models.VolMute) {
		db = -int(models.VolMute)
	}
	return byte(-db)
}

// AttToDB is the inverse of DBToAtt.
func AttToDB(att byte) int {
	if att > models.VolMute {
		att = models.VolMute
	}
	return -int(att)
}

package devices

import (
	"math"

	"github.com/micro-nova/amplipi-preamp/internal/fixed"
)

// HV rail divider: the rail feeds the ADC through a series resistor into a
// pulldown, sampled against the ADC's reference.
const (
	adcRefVolts    = 3.3
	adcMaxCode     = 255
	hvSeriesOhms   = 100e3
	hvPulldownOhms = 4.7e3
)

// Thermistors sit on the high side of a 10 kΩ pulldown, so an open sensor
// reads code 0 and a shorted one reads full scale.
const (
	ntcR0Ohms         = 10e3
	ntcT0Kelvin       = 298.15
	ntcBeta           = 3900
	thermPulldownOhms = 10e3
	kelvinOffset      = 273.15
)

var tempLUT = buildTempLUT()

// VoltsFromRaw converts an HV rail sample to volts in UQ6.2. Readings above
// 63.75 V saturate.
func VoltsFromRaw(raw uint8) fixed.Volts {
	v := adcRefVolts * (hvPulldownOhms + hvSeriesOhms) / hvPulldownOhms / adcMaxCode * float64(raw)
	return fixed.VoltsFromFloat(v)
}

// TempFromRaw converts a thermistor sample to the register temperature format.
func TempFromRaw(raw uint8) fixed.Temp8 {
	return tempLUT[raw]
}

func buildTempLUT() [256]fixed.Temp8 {
	var lut [256]fixed.Temp8
	lut[0] = fixed.TempDisconnected
	lut[adcMaxCode] = fixed.TempShorted
	for code := 1; code < adcMaxCode; code++ {
		ratio := float64(code) / adcMaxCode
		rt := thermPulldownOhms * (1/ratio - 1)
		kelvin := 1 / (1/ntcT0Kelvin + math.Log(rt/ntcR0Ohms)/ntcBeta)
		lut[code] = fixed.Temp8FromCelsius(kelvin - kelvinOffset)
	}
	return lut
}

package devices

// MCP23008-style 8-bit GPIO expander registers.
const (
	regIODIR = 0x00
	regGPIO  = 0x09
	regOLAT  = 0x0A
)

// Bus addresses of the two expanders.
const (
	LEDGPIOAddr   = 0x20
	PowerGPIOAddr = 0x21
)

// Power board expander pin map.
const (
	pinPG9V    = 1 << 0 // in
	pinEN9V    = 1 << 1 // out
	pinPG12V   = 1 << 2 // in
	pinEN12V   = 1 << 3 // out
	pinPG5VD   = 1 << 4 // in
	pinPG5VA   = 1 << 5 // in
	pinFanOn   = 1 << 6 // out
	pinFanFail = 1 << 7 // in, from the hardware fan controller

	powerInputs = pinPG9V | pinPG12V | pinPG5VD | pinPG5VA | pinFanFail
)

// PowerInputs holds the power-good and fan-fail inputs.
type PowerInputs struct {
	PG9V    bool
	PG12V   bool
	PG5VD   bool
	PG5VA   bool
	FanFail bool
}

// PowerOutputs is the actuator byte written to the power expander: both
// supply enables are always set, the fan-on bit follows the fan controller.
func PowerOutputs(fanOn bool) byte {
	v := byte(pinEN9V | pinEN12V)
	if fanOn {
		v |= pinFanOn
	}
	return v
}

// EN9V reports whether the 9 V enable bit is set in an output byte.
func EN9V(out byte) bool { return out&pinEN9V != 0 }

// EN12V reports whether the 12 V enable bit is set in an output byte.
func EN12V(out byte) bool { return out&pinEN12V != 0 }

// FanOn reports whether the fan-on bit is set in an output byte.
func FanOn(out byte) bool { return out&pinFanOn != 0 }

// ConfigurePower sets the power expander's pin directions.
func ConfigurePower(b Bus) error {
	return b.WriteRegister(PowerGPIOAddr, regIODIR, powerInputs)
}

// ReadPower samples the power expander's inputs.
func ReadPower(b Bus) (PowerInputs, error) {
	v, err := b.ReadRegister(PowerGPIOAddr, regGPIO)
	if err != nil {
		return PowerInputs{}, err
	}
	return PowerInputs{
		PG9V:    v&pinPG9V != 0,
		PG12V:   v&pinPG12V != 0,
		PG5VD:   v&pinPG5VD != 0,
		PG5VA:   v&pinPG5VA != 0,
		FanFail: v&pinFanFail != 0,
	}, nil
}

// WritePower latches the power expander's outputs.
func WritePower(b Bus, out byte) error {
	return b.WriteRegister(PowerGPIOAddr, regOLAT, out)
}

// ConfigureLEDs makes every LED expander pin an output.
func ConfigureLEDs(b Bus) error {
	return b.WriteRegister(LEDGPIOAddr, regIODIR, 0x00)
}

// WriteLEDs latches the LED byte: green, red, then zones 1-6.
func WriteLEDs(b Bus, leds byte) error {
	return b.WriteRegister(LEDGPIOAddr, regOLAT, leds)
}

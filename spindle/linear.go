package spindle

// LinearDriver is a reference Driver that maps rpm/feed rate linearly onto
// a 0-MaxPWM range, used by tests in place of real spindle hardware.
type LinearDriver struct {
	MaxRPM     float64
	MaxPWM     uint16
	MaxRateMPM float64

	LastPWM uint16 // last value written by SetPWM, for test assertions
}

// NewLinearDriver returns a LinearDriver with the given scaling.
func NewLinearDriver(maxRPM float64, maxPWM uint16, maxRateMPM float64) *LinearDriver {
	return &LinearDriver{MaxRPM: maxRPM, MaxPWM: maxPWM, MaxRateMPM: maxRateMPM}
}

func (d *LinearDriver) SetSpeed(rpm float64) uint16 {
	if rpm <= 0 {
		return PWMOff
	}
	if rpm >= d.MaxRPM {
		return d.MaxPWM
	}
	return uint16(rpm / d.MaxRPM * float64(d.MaxPWM))
}

func (d *LinearDriver) ComputePWM(rateMMPerMin float64) uint16 {
	if rateMMPerMin <= 0 {
		return PWMOff
	}
	if rateMMPerMin >= d.MaxRateMPM {
		return d.MaxPWM
	}
	return uint16(rateMMPerMin / d.MaxRateMPM * float64(d.MaxPWM))
}

func (d *LinearDriver) SetPWM(pwm uint16) {
	d.LastPWM = pwm
}

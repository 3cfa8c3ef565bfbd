/*
 * stepcore - Machine settings configuration.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package settingsconfig registers the AXIS/STEPPER/SPINDLE configuration
// sections with config/configparser, the way config/debugconfig registers
// DEBUG. Each section's key=value options are applied to a bound
// settings.Settings instance rather than a device table.
package settingsconfig

import (
	"errors"
	"strconv"
	"strings"

	config "github.com/hrcornwell/stepcore/config/configparser"
	"github.com/hrcornwell/stepcore/settings"
)

var active *settings.Settings

func init() {
	config.RegisterModel("AXIS", config.TypeOptions, setAxis)
	config.RegisterModel("STEPPER", config.TypeOptions, setStepper)
	config.RegisterModel("SPINDLE", config.TypeOptions, setSpindle)
}

// Bind installs s as the settings instance AXIS/STEPPER/SPINDLE lines
// apply to. Must be called before LoadConfigFile.
func Bind(s *settings.Settings) {
	active = s
}

func axisIndex(name string) (int, error) {
	switch strings.ToUpper(name) {
	case "X":
		return 0, nil
	case "Y":
		return 1, nil
	case "Z":
		return 2, nil
	default:
		return 0, errors.New("unknown axis: " + name)
	}
}

func optionValue(opt config.Option) (string, bool) {
	if opt.EqualOpt != "" {
		return opt.EqualOpt, true
	}
	return "", false
}

func setAxis(_ uint16, axisName string, options []config.Option) error {
	if active == nil {
		return errors.New("settingsconfig: no settings bound")
	}
	axis, err := axisIndex(axisName)
	if err != nil {
		return err
	}
	for _, opt := range options {
		v, ok := optionValue(opt)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.New("AXIS " + axisName + " " + opt.Name + ": not a number: " + v)
		}
		switch strings.ToLower(opt.Name) {
		case "steps-per-mm":
			active.StepsPerMM[axis] = f
		case "max-rate":
			active.MaxRateMMMin[axis] = f
		case "accel":
			active.AccelMMMin2[axis] = f * 60.0
		default:
			return errors.New("AXIS: unknown option " + opt.Name)
		}
	}
	return nil
}

func setStepper(_ uint16, _ string, options []config.Option) error {
	if active == nil {
		return errors.New("settingsconfig: no settings bound")
	}
	for _, opt := range options {
		v, _ := optionValue(opt)
		switch strings.ToLower(opt.Name) {
		case "invert-step":
			n, err := strconv.ParseUint(v, 0, 8)
			if err != nil {
				return errors.New("STEPPER invert-step: " + v)
			}
			active.StepInvertMask = uint8(n)
		case "invert-dir":
			n, err := strconv.ParseUint(v, 0, 8)
			if err != nil {
				return errors.New("STEPPER invert-dir: " + v)
			}
			active.DirInvertMask = uint8(n)
		case "idle-lock":
			n, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				return errors.New("STEPPER idle-lock: " + v)
			}
			active.StepperIdleLockTime = uint16(n)
		case "laser-mode":
			active.LaserMode = v == "1" || strings.EqualFold(v, "true")
		default:
			return errors.New("STEPPER: unknown option " + opt.Name)
		}
	}
	return nil
}

func setSpindle(_ uint16, _ string, options []config.Option) error {
	if active == nil {
		return errors.New("settingsconfig: no settings bound")
	}
	for _, opt := range options {
		v, _ := optionValue(opt)
		switch strings.ToLower(opt.Name) {
		case "max-rpm":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return errors.New("SPINDLE max-rpm: " + v)
			}
			active.SpindleMaxRPM = f
		default:
			return errors.New("SPINDLE: unknown option " + opt.Name)
		}
	}
	return nil
}

/*
 * stepcore - Runtime settings.
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

// Package settings holds the runtime-configurable machine settings: invert
// masks, idle lock timing, laser mode, and per-axis pin assignments. Values
// are loaded by config/settingsconfig and read by stepper.Core.
package settings

import "github.com/hrcornwell/stepcore/stepconf"

// Settings is the full set of runtime-configurable machine parameters.
type Settings struct {
	StepInvertMask      uint8
	DirInvertMask       uint8
	LaserMode           bool
	StepperIdleLockTime uint16 // milliseconds; 0xFFFF means "never idle"

	StepPinMask [stepconf.NAxis]uint8
	DirPinMask  [stepconf.NAxis]uint8

	StepsPerMM   [stepconf.NAxis]float64
	MaxRateMMMin [stepconf.NAxis]float64
	AccelMMMin2  [stepconf.NAxis]float64

	SpindleMaxRPM float64
}

// Default returns settings with one step/dir pin per axis in bit-index
// order and no inversion, idle lock disabled.
func Default() *Settings {
	s := &Settings{
		StepperIdleLockTime: 0xFFFF,
	}
	for axis := 0; axis < stepconf.NAxis; axis++ {
		s.StepPinMask[axis] = 1 << uint(axis)
		s.DirPinMask[axis] = 1 << uint(axis)
		s.StepsPerMM[axis] = 80.0
		s.MaxRateMMMin[axis] = 5000.0
		s.AccelMMMin2[axis] = 500.0 * 60.0
	}
	return s
}

// GetStepPinMask returns the STEP output bit for axis.
func (s *Settings) GetStepPinMask(axis int) uint8 {
	return s.StepPinMask[axis]
}

// GetDirectionPinMask returns the DIR output bit for axis.
func (s *Settings) GetDirectionPinMask(axis int) uint8 {
	return s.DirPinMask[axis]
}

/*
 * stepcore - Spindle driver contract.
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

// Package spindle defines the spindle driver contract used when a block's
// PWM tracks feed rate (laser mode, CCW rate-adjusted spindle).
package spindle

// PWMOff is the PWM value that disables spindle output entirely.
const PWMOff uint16 = 0

// Driver is the spindle/laser output contract.
type Driver interface {
	// SetSpeed commands the spindle to rpm, returning the PWM value used.
	SetSpeed(rpm float64) uint16

	// ComputePWM maps an instantaneous feed rate (mm/min) to a PWM value
	// for rate-adjusted (laser) operation.
	ComputePWM(rateMMPerMin float64) uint16

	// SetPWM writes a precomputed PWM value straight to the output,
	// bypassing the rpm/rate mapping. Used by the Execution Engine to
	// apply the per-segment PWM the Preparer already computed.
	SetPWM(pwm uint16)
}

/*
 * stepcore - GPIO pulse output contract.
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

// Package gpio defines the pulse output contract: raw STEP/DIR line control,
// with invert-mask polarity correction applied by the caller before Set/Reset.
// Implementations must be callable from the tick goroutine: no allocation, no
// blocking, no locks held across a call.
package gpio

// Driver drives a bitmask of output lines.
type Driver interface {
	// Set raises the lines named by mask.
	Set(mask uint8)
	// Reset lowers the lines named by mask.
	Reset(mask uint8)
}

// Recorder is a reference Driver that records the live line state, used by
// tests to assert on pulse timing and polarity without real hardware.
type Recorder struct {
	State uint8
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Set(mask uint8)   { r.State |= mask }
func (r *Recorder) Reset(mask uint8) { r.State &^= mask }

/*
 * stepcore - Step Execution Engine.
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

// Package execengine implements the Step Execution Engine: a timer-driven
// consumer of the segment ring that runs a fixed-point Bresenham tracer,
// emits step/direction pulses, advances machine-position counters, and
// retires segments. Nothing in Tick uses floating point, and its only
// allocation is the time.AfterFunc timer that ends each step pulse — it is
// the stand-in for a hardware timer-compare interrupt and must run in
// bounded time.
package execengine

import (
	"sync/atomic"
	"time"

	"github.com/hrcornwell/stepcore/block"
	"github.com/hrcornwell/stepcore/gpio"
	"github.com/hrcornwell/stepcore/probe"
	"github.com/hrcornwell/stepcore/segment"
	"github.com/hrcornwell/stepcore/settings"
	"github.com/hrcornwell/stepcore/spindle"
	"github.com/hrcornwell/stepcore/stepconf"
)

// State is the Execution Engine's persistent state (ExecState in the
// distilled spec): the Bresenham counters and the segment currently being
// stepped through.
type State struct {
	Counter       [stepconf.NAxis]int32
	StepBits      uint8
	DirBits       uint8
	StepCount     uint32 // ticks remaining in the current segment (NStep << AmassLevel)
	AmassStep     uint8  // sub-step index within the current AMASS interleave
	SegmentLoaded bool
	seg           *segment.Segment

	BlockIndex int  // StBlockIndex of the block the loaded segment belongs to
	HasBlock   bool // false until the first segment has been loaded
}

// Engine is the tick-driven consumer: on every Tick it loads the next
// segment if none is active, advances the Bresenham tracer one sub-step
// and emits pulses, and retires the segment once its last tick is done.
type Engine struct {
	ring       *segment.Ring
	pool       *block.Pool
	gpioDrv    gpio.Driver
	settings   *settings.Settings
	probeDrv   probe.Monitor
	spindleDrv spindle.Driver

	state State

	// position is the machine position in steps, signed by direction.
	// Kept outside State since it is absolute machine state that must
	// survive a Reset (a cycle abort mid-job does not relocate the
	// machine), unlike the per-segment Bresenham bookkeeping in State.
	position [stepconf.NAxis]int32

	disabled     uint32 // atomic bool
	probeTripped uint32 // atomic bool, latched once StateMonitor trips
	pulseWide    time.Duration
	lastMask     uint8
}

// NewEngine returns an Engine wired to the given ring, block pool, GPIO
// driver, probe monitor, spindle driver, and settings. pulseWide is how
// long a step pulse stays high before pulseReset clears it (distilled spec
// §4.4).
func NewEngine(ring *segment.Ring, pool *block.Pool, drv gpio.Driver, pr probe.Monitor, sp spindle.Driver, st *settings.Settings, pulseWide time.Duration) *Engine {
	return &Engine{ring: ring, pool: pool, gpioDrv: drv, probeDrv: pr, spindleDrv: sp, settings: st, pulseWide: pulseWide}
}

// Disable stops the engine from emitting further pulses until Reset.
func (e *Engine) Disable() {
	atomic.StoreUint32(&e.disabled, 1)
}

// Disabled reports whether the engine is currently disabled.
func (e *Engine) Disabled() bool {
	return atomic.LoadUint32(&e.disabled) != 0
}

// Position returns the current machine position in steps per axis.
func (e *Engine) Position() [stepconf.NAxis]int32 {
	return e.position
}

// Reset clears all Bresenham state and re-enables the engine, ready to
// load a fresh segment on the next Tick.
func (e *Engine) Reset() {
	e.state = State{}
	atomic.StoreUint32(&e.disabled, 0)
	atomic.StoreUint32(&e.probeTripped, 0)
}

// ProbeTripped reports whether the probe monitor has latched a trip since
// the last Reset.
func (e *Engine) ProbeTripped() bool {
	return atomic.LoadUint32(&e.probeTripped) != 0
}

// Tick runs one timer-interrupt-equivalent step of the engine: loading a
// new segment if none is active, then emitting one Bresenham sub-step and
// scheduling its pulse reset. It returns the timer reload (in ticks) the
// caller should program for the next Tick, and false if there was nothing
// to step on this call (ring empty when a segment was needed, or the probe
// just tripped — the caller should stop ticking until a new segment is
// published or the probe is cleared). The tick that emits a segment's last
// step still reports ok; an empty ring is reported by the following Tick.
func (e *Engine) Tick() (reload uint32, ok bool) {
	if e.Disabled() {
		return 0, false
	}

	if e.probeDrv != nil && e.probeDrv.StateMonitor() {
		atomic.StoreUint32(&e.probeTripped, 1)
		return 0, false
	}

	s := &e.state
	if !s.SegmentLoaded {
		seg := e.ring.Peek()
		if seg == nil {
			return 0, false
		}
		s.seg = seg
		s.StepCount = uint32(seg.NStep) << seg.AmassLevel
		s.AmassStep = 0
		s.SegmentLoaded = true
		blk := e.pool.At(seg.StBlockIndex)
		s.DirBits = blk.DirectionBits

		if !s.HasBlock || s.BlockIndex != seg.StBlockIndex {
			s.BlockIndex = seg.StBlockIndex
			s.HasBlock = true
			half := int32(blk.StepEventCount / 2)
			for axis := 0; axis < stepconf.NAxis; axis++ {
				s.Counter[axis] = half
			}
		}

		if e.spindleDrv != nil {
			e.spindleDrv.SetPWM(seg.SpindlePWM)
		}
	}

	seg := s.seg
	blk := e.pool.At(seg.StBlockIndex)

	// Bresenham: accumulate each axis's step rate, scaled down by this
	// segment's AMASS level, against the dominant axis's (unscaled)
	// event count. At AmassLevel 0 the dominant axis overflows every tick;
	// at higher levels the ISR runs 2^level times more often and each axis
	// accumulates proportionally less per tick, so the dominant axis still
	// steps at the same real-world rate while the other axes get finer
	// sub-step placement. Counters start at step_event_count/2 on a new
	// block so the error term is centered rather than biased low.
	var stepBits uint8
	for axis := 0; axis < stepconf.NAxis; axis++ {
		s.Counter[axis] += int32(blk.Steps[axis] >> seg.AmassLevel)
		if s.Counter[axis] > int32(blk.StepEventCount) {
			s.Counter[axis] -= int32(blk.StepEventCount)
			stepBits |= e.settings.GetStepPinMask(axis)
			if s.DirBits&(1<<uint(axis)) != 0 {
				e.position[axis]--
			} else {
				e.position[axis]++
			}
		}
	}

	dirMask := e.applyDirection(s.DirBits)
	e.pulseStart(stepBits, dirMask)

	reload = uint32(seg.CyclesPerTick)
	s.AmassStep++
	s.StepCount--

	if s.StepCount == 0 {
		e.ring.Advance()
		s.SegmentLoaded = false
		if next := e.ring.Peek(); next != nil {
			reload = uint32(next.CyclesPerTick)
		}
	}

	return reload, true
}

// applyDirection corrects raw direction bits for the configured invert
// mask and programs the DIR lines, returning the corrected mask.
func (e *Engine) applyDirection(dirBits uint8) uint8 {
	corrected := dirBits ^ e.settings.DirInvertMask
	var mask uint8
	for axis := 0; axis < stepconf.NAxis; axis++ {
		if corrected&(1<<uint(axis)) != 0 {
			mask |= e.settings.GetDirectionPinMask(axis)
		}
	}
	e.gpioDrv.Set(mask)
	e.gpioDrv.Reset(^mask & e.allDirMask())
	return mask
}

func (e *Engine) allDirMask() uint8 {
	var m uint8
	for axis := 0; axis < stepconf.NAxis; axis++ {
		m |= e.settings.GetDirectionPinMask(axis)
	}
	return m
}

// pulseStart raises the STEP lines named by stepBits (inverted per
// settings) and schedules pulseReset to lower them after pulseWide.
func (e *Engine) pulseStart(stepBits, _ uint8) {
	corrected := stepBits ^ e.settings.StepInvertMask
	var mask uint8
	for axis := 0; axis < stepconf.NAxis; axis++ {
		if corrected&(1<<uint(axis)) != 0 {
			mask |= e.settings.GetStepPinMask(axis)
		}
	}
	if mask == 0 {
		return
	}
	e.gpioDrv.Set(mask)
	e.lastMask = mask
	time.AfterFunc(e.pulseWide, func() {
		e.pulseReset(mask)
	})
}

// pulseReset lowers the STEP lines raised by the most recent pulseStart.
// Invoked from a timer standing in for the hardware compare-match
// interrupt that ends a step pulse (distilled spec §4.4).
func (e *Engine) pulseReset(mask uint8) {
	e.gpioDrv.Reset(mask)
}

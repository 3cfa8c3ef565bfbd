/*
 * stepcore - Stepper core aggregate.
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

// Package stepper ties the Segment Preparer and Step Execution Engine
// together into the single aggregate a caller constructs and drives:
// Core. It owns the segment ring, the block pool, both halves' persistent
// state, the machine position counters, and the invert masks, and is
// shared between the foreground goroutine (console, PrepareBuffer pump)
// and the tick goroutine, mirroring the teacher's core.core aggregate
// shared between Start/Stop and its channel-fed timer.
package stepper

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hrcornwell/stepcore/block"
	"github.com/hrcornwell/stepcore/event"
	"github.com/hrcornwell/stepcore/execengine"
	"github.com/hrcornwell/stepcore/gpio"
	"github.com/hrcornwell/stepcore/planner"
	"github.com/hrcornwell/stepcore/prep"
	"github.com/hrcornwell/stepcore/probe"
	"github.com/hrcornwell/stepcore/segment"
	"github.com/hrcornwell/stepcore/settings"
	"github.com/hrcornwell/stepcore/spindle"
	"github.com/hrcornwell/stepcore/stepconf"
)

// ControlFlags bits, set/cleared atomically from the console or from the
// tick goroutine. These are single-bit idempotent real-time signals, not
// message-passed, since the Execution Engine must never block on a
// channel send from inside Tick.
const (
	FlagFeedHold uint32 = 1 << iota
	FlagCycleStop
	FlagHomingLock
	FlagProbeTripped
	FlagPlanUpdate
	FlagParking
	FlagEndMotion
)

// Core is the single stepper motion aggregate: ring, pool, preparer, exec
// engine, and the collaborators they call out to.
type Core struct {
	ring *segment.Ring
	pool *block.Pool
	prep *prep.Preparer
	exec *execengine.Engine

	planner planner.Planner
	spindle spindle.Driver
	probe   probe.Monitor
	gpio    gpio.Driver

	settings *settings.Settings
	events   *event.List

	controlFlags uint32 // atomic, see Flag* constants
	realtimeRate atomic.Value // float64, mm/min

	wg      sync.WaitGroup
	done    chan struct{}
	enable  chan bool
	running bool

	parkingSaved *prep.State
}

// NewCore constructs a Core. stepconf.MaxAmassLevel < 1 is rejected here: Go
// has no user-level static_assert, so this is the closest equivalent to
// the distilled spec's compile-time check.
func NewCore(pl planner.Planner, sp spindle.Driver, pr probe.Monitor, gp gpio.Driver, st *settings.Settings) *Core {
	if stepconf.MaxAmassLevel < 1 {
		panic("stepper: MaxAmassLevel must be at least 1")
	}

	ring := segment.NewRing()
	pool := block.NewPool()
	c := &Core{
		ring:     ring,
		pool:     pool,
		prep:     prep.NewPreparer(pool, ring, sp),
		planner:  pl,
		spindle:  sp,
		probe:    pr,
		gpio:     gp,
		settings: st,
		events:   event.NewList(),
		done:     make(chan struct{}),
		enable:   make(chan bool, 1),
	}
	pulseWide := 4 * time.Microsecond
	c.exec = execengine.NewEngine(ring, pool, gp, pr, sp, st, pulseWide)
	c.realtimeRate.Store(float64(0))
	return c
}

// Init starts the tick goroutine. It must be called exactly once before
// any motion is prepared.
func (c *Core) Init() {
	c.wg.Add(1)
	go c.run()
}

// Shutdown stops the tick goroutine and waits for it to exit.
func (c *Core) Shutdown() {
	close(c.done)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("stepper: timed out waiting for tick loop to finish")
	}
}

// WakeUp re-enables the tick goroutine after a Disable, loading fresh
// segments first if the ring has room.
func (c *Core) WakeUp() {
	c.exec.Reset()
	c.PrepareBuffer()
	c.enable <- true
}

// idleLockArg tags the one pending idle-lock event a Core can ever have
// armed at once.
const idleLockArg = 1

// ArmIdleLock (re)schedules a Disable after the configured idle lock
// timeout, cancelling any previously armed one. A StepperIdleLockTime of
// 0xFFFF means "never idle" and arms nothing. Call after a segment
// finishes with the ring left empty.
func (c *Core) ArmIdleLock() {
	c.events.CancelEvent(c, idleLockArg)
	if c.settings.StepperIdleLockTime == 0xFFFF {
		return
	}
	c.events.AddEvent(c, func(int) { c.Disable() }, int(c.settings.StepperIdleLockTime), idleLockArg)
}

// Disable stops pulse output immediately; the tick goroutine keeps
// running but Tick will report not-ok until WakeUp.
func (c *Core) Disable() {
	c.exec.Disable()
}

// Reset clears all motion state: engine counters, preparer state, ring,
// and control flags. Used on cycle reset / abort.
func (c *Core) Reset() {
	c.exec.Reset()
	c.prep.SetState(prep.NewState())
	for !c.ring.Empty() {
		c.ring.Advance()
	}
	atomic.StoreUint32(&c.controlFlags, 0)
}

// GenerateStepDirInvertMasks recomputes the settings' invert masks from
// the configured per-axis polarity, called after a settings change.
func (c *Core) GenerateStepDirInvertMasks(stepInvert, dirInvert uint8) {
	c.settings.StepInvertMask = stepInvert
	c.settings.DirInvertMask = dirInvert
}

// PrepareBuffer pumps the Preparer until the segment ring is full or the
// planner has nothing queued. Call after pushing new planner blocks and
// after any plan update (RECALCULATE). Mirrors the preparer's latched
// EndMotion state into FlagEndMotion so the console's status query can
// observe it.
func (c *Core) PrepareBuffer() {
	holdRequested := c.ControlFlagsSnapshot()&FlagFeedHold != 0
	c.prep.FillSegmentBuffer(c.planner, holdRequested)
	if c.prep.InternalState().EndMotion {
		c.SetControlFlag(FlagEndMotion)
	}
}

// ClearEndMotion clears the latched end-of-motion state in both the
// preparer and the control-flag bitmask, re-arming FillSegmentBuffer.
// Call when a feed hold is released (cycle start / resume).
func (c *Core) ClearEndMotion() {
	c.prep.ClearEndMotion()
	c.ClearControlFlag(FlagEndMotion)
}

// UpdatePlannerBlockParams marks the block currently being prepared for
// profile recalculation (a look-ahead plan update changed its exit speed)
// without re-loading its step data, then re-pumps the buffer.
func (c *Core) UpdatePlannerBlockParams() {
	c.SetControlFlag(FlagPlanUpdate)
	s := c.prep.InternalState()
	if s.HasBlock() {
		s.RecalcFlag |= prep.RecalcRecalculate
	}
	c.PrepareBuffer()
	c.ClearControlFlag(FlagPlanUpdate)
}

// ParkingSetupBuffer snapshots the in-progress preparer state so a parking
// motion can run on a fresh buffer, to be restored by ParkingRestoreBuffer.
func (c *Core) ParkingSetupBuffer() {
	c.SetControlFlag(FlagParking)
	c.parkingSaved = c.prep.InternalState().Clone()
	c.prep.SetState(prep.NewState())
}

// ParkingRestoreBuffer restores the state snapshotted by
// ParkingSetupBuffer once the parking motion has completed.
func (c *Core) ParkingRestoreBuffer() {
	if c.parkingSaved != nil {
		c.prep.SetState(c.parkingSaved)
		c.parkingSaved = nil
	}
	c.ClearControlFlag(FlagParking)
	c.PrepareBuffer()
}

// jogPusher is the optional capability a Planner implementation may offer
// to accept a synthetic system-motion block ahead of its normal look-ahead
// queue. planner.StaticPlanner satisfies it via its exported Push.
type jogPusher interface {
	Push(*planner.Block)
}

// Jog queues a synthetic single-block move built from distance (mm per
// axis, signed for direction) and rate (mm/min), bypassing the look-ahead
// queue, then wakes the tick goroutine to execute it. The planner must
// implement jogPusher or the move is silently dropped.
func (c *Core) Jog(distance [stepconf.NAxis]float64, rate float64) {
	c.ClearEndMotion()
	b := c.planner.SystemMotionBlock(distance, rate)
	if pusher, ok := c.planner.(jogPusher); ok {
		pusher.Push(b)
	}
	c.PrepareBuffer()
	c.WakeUp()
}

// Home drives every axis toward its negative limit at rate, with
// FlagHomingLock raised until the tick goroutine reports cycle stop. The
// flag is informational: Jog and the console do not consult it, so jog and
// feed commands are not rejected while it is set.
func (c *Core) Home(rate float64) {
	c.SetControlFlag(FlagHomingLock)
	var distance [stepconf.NAxis]float64
	for axis := range distance {
		distance[axis] = -1000.0
	}
	c.Jog(distance, rate)
}

// Position returns the current machine position in steps per axis.
func (c *Core) Position() [stepconf.NAxis]int32 {
	return c.exec.Position()
}

// GetRealtimeRate returns the instantaneous feed rate, read from an
// atomically-published value so the console's status query never
// contends with the tick goroutine.
func (c *Core) GetRealtimeRate() float64 {
	return c.realtimeRate.Load().(float64)
}

// SetControlFlag raises a real-time event flag. Flags are single-bit
// idempotent signals set with a compare-and-swap retry loop rather than a
// channel send, since the tick goroutine must never block here.
func (c *Core) SetControlFlag(flag uint32) {
	for {
		old := atomic.LoadUint32(&c.controlFlags)
		if atomic.CompareAndSwapUint32(&c.controlFlags, old, old|flag) {
			return
		}
	}
}

// ClearControlFlag lowers a real-time event flag.
func (c *Core) ClearControlFlag(flag uint32) {
	for {
		old := atomic.LoadUint32(&c.controlFlags)
		if atomic.CompareAndSwapUint32(&c.controlFlags, old, old&^flag) {
			return
		}
	}
}

// ControlFlagsSnapshot returns the current control-flag bitmask.
func (c *Core) ControlFlagsSnapshot() uint32 {
	return atomic.LoadUint32(&c.controlFlags)
}

// run is the tick goroutine: the stand-in for the hardware step-timer
// interrupt. It ticks, reprograms its own reload for the next tick, and
// stops cleanly whenever the engine reports nothing left to step.
func (c *Core) run() {
	defer c.wg.Done()
	var timer *time.Timer
	c.running = false

	stop := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	defer stop()

	var fire <-chan time.Time
	for {
		select {
		case <-c.done:
			return
		case c.running = <-c.enable:
			if c.running {
				reload, ok := c.exec.Tick()
				if c.exec.ProbeTripped() {
					c.SetControlFlag(FlagProbeTripped)
				}
				if !ok {
					c.running = false
					c.SetControlFlag(FlagCycleStop)
					continue
				}
				timer = time.NewTimer(ticksToDuration(reload))
				fire = timer.C
			} else {
				stop()
				fire = nil
			}
		case <-fire:
			if !c.running {
				continue
			}
			c.events.Advance(1)
			reload, ok := c.exec.Tick()
			if c.exec.ProbeTripped() {
				c.SetControlFlag(FlagProbeTripped)
			}
			if !ok {
				c.running = false
				c.SetControlFlag(FlagCycleStop)
				c.ClearControlFlag(FlagHomingLock)
				c.ArmIdleLock()
				continue
			}
			c.realtimeRate.Store(rateFromReload(reload))
			timer = time.NewTimer(ticksToDuration(reload))
			fire = timer.C
		}
	}
}

func ticksToDuration(ticks uint32) time.Duration {
	if ticks == 0 {
		ticks = stepconf.StepTimerMin
	}
	return time.Duration(ticks) * time.Second / time.Duration(stepconf.FTimerStepper)
}

func rateFromReload(ticks uint32) float64 {
	if ticks == 0 {
		return 0
	}
	stepsPerSec := float64(stepconf.FTimerStepper) / float64(ticks)
	return stepsPerSec * 60.0
}

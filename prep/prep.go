/*
 * stepcore - Segment Preparer.
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

// Package prep implements the Segment Preparer: it runs in the foreground,
// pulls planner blocks, integrates a trapezoidal/triangular velocity
// profile in floating point, and hands the Step Execution Engine integer
// step counts and timer reloads through the segment ring and block pool.
//
// Nothing here runs on the tick path; floating point and dynamic branching
// are both fine in this package.
package prep

import (
	"math"

	"github.com/hrcornwell/stepcore/block"
	"github.com/hrcornwell/stepcore/planner"
	"github.com/hrcornwell/stepcore/segment"
	"github.com/hrcornwell/stepcore/spindle"
	"github.com/hrcornwell/stepcore/stepconf"
)

// RampType identifies which phase of the velocity profile a given point in
// a block falls into.
type RampType uint8

const (
	RampAccel RampType = iota
	RampCruise
	RampDecel
	RampDecelOverride
)

// Recalc flag bits, ORed into State.RecalcFlag.
const (
	RecalcNone          uint8 = 0
	RecalcRecalculate   uint8 = 1 << 0
	RecalcHoldPartial   uint8 = 1 << 1
	RecalcParking       uint8 = 1 << 2
	RecalcDecelOverride uint8 = 1 << 3
)

// State is the Preparer's persistent state (PrepState in the distilled
// spec): the velocity profile for the block currently being prepared, plus
// the fractional step-counting bookkeeping that is carried across segments.
type State struct {
	StBlockIndex int
	RecalcFlag   uint8

	DtRemainder       float64
	StepsRemaining    float64 // rounded-up remaining steps, carried from the prior segment
	StepPerMM         float64
	ReqMMIncrement    float64
	MMRemaining       float64
	CurrentSpeed      float64
	CurrentSpindlePWM uint16

	RampType        RampType
	MMComplete      float64
	MaximumSpeed    float64
	ExitSpeed       float64
	AccelerateUntil float64
	DecelerateAfter float64
	Acceleration    float64

	// EndMotion latches once a system-motion block runs to completion or a
	// feed hold bottoms out before the block's natural end. It gates
	// FillSegmentBuffer (no further segments are prepared) until
	// Preparer.ClearEndMotion is called, and stepper.Core mirrors it into
	// FlagEndMotion for the console to report.
	EndMotion bool
	// HoldPartialBlock reports that the block currently loaded was retained
	// rather than discarded because a feed hold stopped it short of its
	// natural end; resuming continues consuming the same block.
	HoldPartialBlock bool

	block *planner.Block
}

// Clone returns a copy of s, used by stepper.Core.ParkingSetupBuffer to
// snapshot the in-progress block before diverting to a parking motion.
func (s *State) Clone() *State {
	clone := *s
	return &clone
}

// NewState returns a fresh Preparer state with no block loaded.
func NewState() *State {
	return &State{}
}

// HasBlock reports whether a planner block is currently being prepared.
func (s *State) HasBlock() bool {
	return s.block != nil
}

// Preparer fills a segment ring from a planner, using a block pool for the
// step data each segment references.
type Preparer struct {
	pool    *block.Pool
	ring    *segment.Ring
	spindle spindle.Driver
	state   *State
}

// NewPreparer returns a Preparer wired to the given block pool, segment
// ring, and spindle driver (used to compute each segment's commanded PWM).
// The planner itself is passed per-call to FillSegmentBuffer, since
// stepcore never owns planner lifetime.
func NewPreparer(pool *block.Pool, ring *segment.Ring, sp spindle.Driver) *Preparer {
	return &Preparer{pool: pool, ring: ring, spindle: sp, state: NewState()}
}

// InternalState returns the Preparer's persistent state, for inspection by tests
// and by stepper.Core's status reporting.
func (pr *Preparer) InternalState() *State {
	return pr.state
}

// SetState installs s as the Preparer's persistent state, used by
// stepper.Core to swap in a fresh or parking-restored state.
func (pr *Preparer) SetState(s *State) {
	pr.state = s
}

// FillSegmentBuffer repeatedly prepares segments from pl until the ring is
// full or the planner has no more motion queued. This is the foreground
// pump driven after every planner push and after every RECALCULATE event.
// holdRequested reflects the caller's current feed-hold control flag; a
// transition edge (re)triggers a decel-to-stop profile recalculation.
//
// Refuses to run at all while State.EndMotion is latched: a system-motion
// block that ran to completion, or a feed hold that bottomed out mid-block,
// must wait for ClearEndMotion before any further segment is prepared.
func (pr *Preparer) FillSegmentBuffer(pl planner.Planner, holdRequested bool) {
	if pr.state.EndMotion {
		return
	}
	pr.syncHold(holdRequested)
	for {
		if pr.ring.Full() {
			return
		}
		if !pr.prepareOne(pl) {
			return
		}
	}
}

// syncHold reacts to a feed-hold control-flag edge by flipping
// RecalcHoldPartial and, if a block is already being prepared, forcing an
// immediate profile recalculation so the next segment starts decelerating
// (or resumes its normal profile) right away. A freshly loaded block always
// recalculates on its own, so no forced recalc is needed when none is
// active yet.
func (pr *Preparer) syncHold(holdRequested bool) {
	s := pr.state
	active := s.RecalcFlag&RecalcHoldPartial != 0
	switch {
	case holdRequested && !active:
		s.RecalcFlag |= RecalcHoldPartial
		if s.HasBlock() {
			s.RecalcFlag |= RecalcRecalculate
		}
	case !holdRequested && active:
		s.RecalcFlag &^= RecalcHoldPartial
		if s.HasBlock() {
			s.RecalcFlag |= RecalcRecalculate
		}
	}
}

// ClearEndMotion lowers the EndMotion latch, allowing FillSegmentBuffer to
// resume: called after a system-motion block's completion has been
// acknowledged, or after a bottomed-out feed hold is resumed.
func (pr *Preparer) ClearEndMotion() {
	pr.state.EndMotion = false
	pr.state.HoldPartialBlock = false
}

// prepareOne prepares exactly one segment, returning false if there was no
// motion left to prepare.
func (pr *Preparer) prepareOne(pl planner.Planner) bool {
	s := pr.state

	if s.block == nil {
		b := pl.CurrentBlock()
		if b == nil {
			return false
		}
		s.block = b
		idx := pr.pool.Alloc()
		s.StBlockIndex = idx
		pr.pool.Load(idx, b.StepCount, b.DirectionBits, b.PWMRateAdjusted)

		s.StepPerMM = b.StepsPerMM
		s.ReqMMIncrement = stepconf.ReqMMIncrementScalar / s.StepPerMM
		s.MMRemaining = b.Millimeters
		s.StepsRemaining = float64(pr.pool.At(idx).StepEventCount >> stepconf.MaxAmassLevel)
		s.CurrentSpeed = b.EntrySpeed
		s.Acceleration = b.Acceleration
		s.DtRemainder = 0
		s.RecalcFlag |= RecalcRecalculate
	}

	if s.RecalcFlag&RecalcRecalculate != 0 {
		computeProfile(s, s.block, pl)
		s.RecalcFlag &^= RecalcRecalculate
	}

	mmVar, speedVar, dt, blockDone := integrateSegment(s)

	segStart := s.MMRemaining
	s.MMRemaining = mmVar
	s.CurrentSpeed = speedVar

	stepDistRemaining := s.MMRemaining * s.StepPerMM
	lastStepsRemaining := s.StepsRemaining
	newStepsRemaining := math.Ceil(stepDistRemaining)
	if newStepsRemaining < 0 {
		newStepsRemaining = 0
	}
	nStep := lastStepsRemaining - newStepsRemaining
	if nStep < 0 {
		nStep = 0
	}

	stepDistCovered := lastStepsRemaining - stepDistRemaining
	var invRate float64
	if stepDistCovered > 1e-12 {
		invRate = (dt + s.DtRemainder) / stepDistCovered
	}
	s.DtRemainder = (newStepsRemaining - stepDistRemaining) * invRate

	var cyclesPerTick uint32
	if nStep > 0 && invRate > 0 {
		cyclesPerTick = uint32(math.Ceil(stepconf.TicksPerMinute * invRate))
	}
	if cyclesPerTick < stepconf.StepTimerMin {
		cyclesPerTick = stepconf.StepTimerMin
	}

	s.StepsRemaining = newStepsRemaining

	if nStep == 0 {
		// Degenerate segment (hold termination, or a fully-consumed block
		// with nothing left to step): discard and either finish the block
		// or keep accumulating time against the next one.
		if blockDone || segStart == s.MMRemaining {
			if !pr.finishBlock(pl) {
				// Block retained (feed hold bottomed out mid-block): there
				// is nothing further to prepare until the hold clears.
				return false
			}
		}
		return true
	}

	blk := pr.pool.At(s.StBlockIndex)
	if blk.PWMRateAdjusted && pr.spindle != nil {
		s.CurrentSpindlePWM = pr.spindle.ComputePWM(s.CurrentSpeed)
	} else {
		s.CurrentSpindlePWM = s.block.SpindlePWM
	}

	amassLevel := segment.SelectAmassLevel(cyclesPerTick)
	seg := pr.ring.Reserve()
	if seg == nil {
		// Ring filled by a concurrent consumer advance between our Full()
		// check and now cannot happen (single producer), but guard anyway.
		return false
	}
	seg.NStep = uint16(nStep)
	seg.CyclesPerTick = uint16(cyclesPerTick >> amassLevel)
	seg.StBlockIndex = s.StBlockIndex
	seg.AmassLevel = amassLevel
	seg.SpindlePWM = s.CurrentSpindlePWM
	seg.BacklashMotion = false
	pr.ring.Publish()

	if blockDone {
		// If this retains the block (hold bottomed out exactly at a segment
		// boundary), the next prepareOne call resolves it through the
		// nStep == 0 path above.
		pr.finishBlock(pl)
	}

	return true
}

// finishBlock concludes the block currently being prepared. A normal block
// end discards it and advances the planner queue. A feed hold that
// decelerated to a stop short of the block's natural end (MMComplete > 0)
// instead retains the block and latches EndMotion, so resuming continues
// consuming the same unstepped remainder rather than dropping it. A
// system-motion block that runs to its natural end also latches EndMotion,
// since it has no successor the planner would otherwise supply.
//
// Returns true if the block was discarded (the caller may look for more
// motion), false if it was retained (nothing more to prepare until the
// hold state changes).
func (pr *Preparer) finishBlock(pl planner.Planner) bool {
	s := pr.state
	holding := s.RecalcFlag&RecalcHoldPartial != 0
	if holding && s.MMComplete > 1e-9 {
		s.EndMotion = true
		s.HoldPartialBlock = true
		return false
	}
	if s.block.IsSystemMotion {
		s.EndMotion = true
	}
	pl.DiscardCurrentBlock()
	s.block = nil
	return true
}

// computeProfile derives the ramp_type, accelerate_until, decelerate_after,
// maximum_speed, exit_speed, and mm_complete for the block currently being
// prepared. Called once per fresh block and again whenever RECALCULATE is
// raised by a plan update.
func computeProfile(s *State, b *planner.Block, pl planner.Planner) {
	nominal := pl.ComputeProfileNominalSpeed(b)
	entry2 := s.CurrentSpeed * s.CurrentSpeed
	nominal2 := nominal * nominal
	exit2 := pl.ExecBlockExitSpeedSqr()
	a := s.Acceleration
	l := s.MMRemaining

	inv2a := 0.5 / a
	intersect := 0.5 * (l + inv2a*(entry2-exit2))

	s.ExitSpeed = math.Sqrt(math.Max(0, exit2))
	s.MMComplete = 0

	switch {
	case s.RecalcFlag&RecalcHoldPartial != 0:
		s.RampType = RampDecel
		s.MaximumSpeed = s.CurrentSpeed
		s.AccelerateUntil = l
		s.DecelerateAfter = l
		mmToStop := inv2a * entry2
		if mmToStop >= l {
			s.ExitSpeed = math.Sqrt(math.Max(0, entry2-2*a*l))
			s.MMComplete = 0
		} else {
			s.MMComplete = l - mmToStop
			s.ExitSpeed = 0
		}

	case entry2 > nominal2:
		accelUntilRaw := l - inv2a*(entry2-nominal2)
		if accelUntilRaw <= 0 {
			s.RampType = RampDecel
			s.MaximumSpeed = s.CurrentSpeed
			s.AccelerateUntil = l
			s.DecelerateAfter = l
		} else {
			s.RampType = RampDecelOverride
			s.MaximumSpeed = nominal
			s.AccelerateUntil = accelUntilRaw
			s.DecelerateAfter = inv2a * (nominal2 - exit2)
		}

	case intersect <= 0:
		s.RampType = RampAccel
		s.MaximumSpeed = s.ExitSpeed
		s.AccelerateUntil = 0
		s.DecelerateAfter = 0

	case intersect >= l:
		s.RampType = RampDecel
		s.MaximumSpeed = s.CurrentSpeed
		s.AccelerateUntil = l
		s.DecelerateAfter = l

	case entry2 == nominal2:
		s.RampType = RampCruise
		s.MaximumSpeed = nominal
		s.AccelerateUntil = l
		s.DecelerateAfter = inv2a * (nominal2 - exit2)

	default:
		accelDist := inv2a * (nominal2 - entry2)
		decelDist := inv2a * (nominal2 - exit2)
		if accelDist+decelDist >= l {
			// Triangle: peak speed never reaches nominal.
			peak2 := 2*a*intersect + exit2
			s.RampType = RampAccel
			s.MaximumSpeed = math.Sqrt(math.Max(0, peak2))
			s.AccelerateUntil = intersect
			s.DecelerateAfter = intersect
		} else {
			s.RampType = RampAccel
			s.MaximumSpeed = nominal
			s.AccelerateUntil = l - accelDist
			s.DecelerateAfter = decelDist
		}
	}
}

// phaseAt returns the ramp phase that applies when mmRemaining mm of the
// block are left to travel.
func (s *State) phaseAt(mmRemaining float64) RampType {
	switch {
	case mmRemaining > s.AccelerateUntil:
		if s.RampType == RampDecelOverride {
			return RampDecelOverride
		}
		return RampAccel
	case mmRemaining > s.DecelerateAfter:
		return RampCruise
	default:
		return RampDecel
	}
}

// integrateSegment numerically integrates the current profile for one
// segment's worth of time (stepconf.DtSegment minutes), extending the time
// budget if needed to guarantee at least one step's worth of travel. It
// returns the block's remaining millimeters and speed at the end of the
// segment, the total time consumed, and whether the block finished.
func integrateSegment(s *State) (mmRemaining, speed, dtUsed float64, blockDone bool) {
	mmRemaining = s.MMRemaining
	speed = s.CurrentSpeed
	mmRemainingBefore := mmRemaining
	minMM := mmRemainingBefore - s.ReqMMIncrement
	dtMax := stepconf.DtSegment

	for iter := 0; iter < 8; iter++ {
		phase := s.phaseAt(mmRemaining)

		var boundary, a float64
		switch phase {
		case RampAccel:
			boundary, a = s.AccelerateUntil, s.Acceleration
		case RampDecelOverride:
			boundary, a = s.AccelerateUntil, -s.Acceleration
		case RampCruise:
			boundary, a = s.DecelerateAfter, 0
		default:
			boundary, a = s.MMComplete, -s.Acceleration
		}

		delta := mmRemaining - boundary
		if delta < 0 {
			delta = 0
		}
		budget := dtMax - dtUsed
		if budget < 0 {
			budget = 0
		}

		var t, dist, newSpeed float64
		reachedBoundary := false

		switch {
		case delta <= 1e-9:
			reachedBoundary = true
		case a == 0:
			if speed <= 0 {
				t = budget
			} else if toBoundary := delta / speed; toBoundary <= budget {
				t, dist, newSpeed, reachedBoundary = toBoundary, delta, speed, true
			} else {
				t, dist, newSpeed = budget, speed*budget, speed
			}
		default:
			disc := speed*speed + 2*a*delta
			if disc < 0 {
				disc = 0
			}
			toBoundary := (math.Sqrt(disc) - speed) / a
			if toBoundary < 0 {
				toBoundary = 0
			}
			if toBoundary <= budget {
				t, dist, newSpeed, reachedBoundary = toBoundary, delta, speed+a*toBoundary, true
			} else {
				t = budget
				dist = speed*t + 0.5*a*t*t
				newSpeed = speed + a*t
			}
		}

		mmRemaining -= dist
		if mmRemaining < 0 {
			mmRemaining = 0
		}
		speed = newSpeed
		dtUsed += t

		if phase == RampDecel && mmRemaining <= s.MMComplete+1e-9 {
			mmRemaining = s.MMComplete
			speed = s.ExitSpeed
			blockDone = true
			return mmRemaining, speed, dtUsed, blockDone
		}

		if dtUsed >= dtMax {
			if mmRemaining > minMM {
				dtMax += stepconf.DtSegment
				continue
			}
			return mmRemaining, speed, dtUsed, false
		}

		if reachedBoundary {
			continue
		}
		return mmRemaining, speed, dtUsed, false
	}
	return mmRemaining, speed, dtUsed, blockDone
}

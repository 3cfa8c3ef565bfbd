/*
 * stepcore - Motion planner contract.
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

// Package planner defines the look-ahead motion planner's contract as seen
// by the Segment Preparer. stepcore never computes a velocity plan itself;
// it only consumes blocks a planner has already produced.
package planner

import "github.com/hrcornwell/stepcore/stepconf"

// Block is one look-ahead-planned motion block, as handed to the Preparer.
type Block struct {
	StepCount       [stepconf.NAxis]uint32
	DirectionBits   uint8
	StepsPerMM      float64
	Millimeters     float64
	EntrySpeed      float64 // mm/min
	EntrySpeedSqr   float64
	NominalSpeed    float64 // mm/min
	Acceleration    float64 // mm/min^2
	SpindlePWM      uint16
	PWMRateAdjusted bool
	IsSystemMotion  bool
}

// Planner is the look-ahead motion planner contract.
type Planner interface {
	// CurrentBlock returns the block the Preparer should currently be
	// consuming, or nil if none is queued.
	CurrentBlock() *Block

	// SystemMotionBlock returns a synthetic single-block move (homing,
	// parking, jogging) bypassing the normal look-ahead queue.
	SystemMotionBlock(distance [stepconf.NAxis]float64, rate float64) *Block

	// DiscardCurrentBlock removes the block most recently returned by
	// CurrentBlock, advancing the planner's internal queue.
	DiscardCurrentBlock()

	// ExecBlockExitSpeedSqr returns the squared exit speed the planner
	// computed for the block the exec engine is currently executing,
	// re-read on every RECALCULATE so a plan update is reflected mid-block.
	ExecBlockExitSpeedSqr() float64

	// ComputeProfileNominalSpeed clamps a block's nominal speed against any
	// override (feed/rapid) active at prep time.
	ComputeProfileNominalSpeed(b *Block) float64
}

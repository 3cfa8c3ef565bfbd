/*
 * stepcore - Stepper block data pool.
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

// Package block holds the per-planner-block step data shared between the
// Preparer and the Step Execution Engine: per-axis step counts already
// pre-shifted for AMASS, the dominant-axis step_event_count, and direction
// bits. Entries live in a fixed pool and are referenced by index from
// segments, never copied.
package block

import "github.com/hrcornwell/stepcore/stepconf"

// StepperBlock is one planner block's worth of step data, AMASS-prescaled.
type StepperBlock struct {
	Steps           [stepconf.NAxis]uint32
	StepEventCount  uint32
	DirectionBits   uint8
	PWMRateAdjusted bool
}

// Pool is the bounded block-data arena. It is sized one entry smaller than
// the segment ring: every segment references a block by index, and a block
// can only be reused once no segment referencing it remains in the ring, so
// the pool never needs more live entries than there are segment slots minus
// one (the exec engine always holds at least the current segment's block
// alive without a free slot backing it).
type Pool struct {
	blocks [stepconf.SegmentBufferSize - 1]StepperBlock
	next   int
}

// NewPool returns an empty block pool.
func NewPool() *Pool {
	return &Pool{}
}

// Alloc reserves the next pool entry for a fresh planner block and returns
// its index. Only the Preparer calls this.
func (p *Pool) Alloc() int {
	idx := p.next
	p.next = (p.next + 1) % len(p.blocks)
	return idx
}

// At returns the block stored at idx.
func (p *Pool) At(idx int) *StepperBlock {
	return &p.blocks[idx]
}

// Load installs a fresh planner block's step data into pool entry idx,
// left-shifting the per-axis step counts by MaxAmassLevel so that every
// AMASS level can address sub-steps without re-deriving the shift per tick.
func (p *Pool) Load(idx int, steps [stepconf.NAxis]uint32, directionBits uint8, pwmRateAdjusted bool) {
	b := &p.blocks[idx]
	var max uint32
	for axis := range steps {
		s := steps[axis] << stepconf.MaxAmassLevel
		b.Steps[axis] = s
		if s > max {
			max = s
		}
	}
	b.StepEventCount = max
	b.DirectionBits = directionBits
	b.PWMRateAdjusted = pwmRateAdjusted
}

/*
 * stepcore - Segment ring buffer.
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

// Package segment implements the lock-free single-producer/single-consumer
// ring buffer shared between the Preparer (producer) and the Step Execution
// Engine (consumer). No locks, no allocation on the hot path: Reserve/Publish
// and Peek/Advance only move atomic indices.
package segment

import (
	"sync/atomic"

	"github.com/hrcornwell/stepcore/stepconf"
)

// Segment is one pre-integrated slice of motion: a fixed number of
// dominant-axis steps to emit at a fixed timer reload, tagged with the
// AMASS level used to derive that reload and the block it steps through.
type Segment struct {
	NStep          uint16
	CyclesPerTick  uint16
	StBlockIndex   int
	AmassLevel     uint8
	SpindlePWM     uint16
	BacklashMotion bool
}

// Ring is the bounded SPSC segment queue. tail is owned by the consumer,
// head and nextHead are owned by the producer; head is the only field the
// consumer reads and the only field the producer publishes with a release
// store, giving the consumer's acquire load a complete view of the segment
// it names.
type Ring struct {
	buf      [stepconf.SegmentBufferSize]Segment
	tail     uint32
	head     uint32
	nextHead uint32
}

// NewRing returns an empty segment ring.
func NewRing() *Ring {
	return &Ring{}
}

// Full reports whether the ring has no free slot for the producer.
func (r *Ring) Full() bool {
	tail := atomic.LoadUint32(&r.tail)
	return tail == (r.nextHead+1)%stepconf.SegmentBufferSize
}

// Empty reports whether the consumer has nothing left to tick through.
func (r *Ring) Empty() bool {
	head := atomic.LoadUint32(&r.head)
	tail := atomic.LoadUint32(&r.tail)
	return head == tail
}

// Reserve returns the next free slot for the producer to fill in place, or
// nil if the ring is full. The caller must follow with Publish once the
// slot is completely written.
func (r *Ring) Reserve() *Segment {
	if r.Full() {
		return nil
	}
	return &r.buf[r.nextHead]
}

// Publish makes the slot most recently returned by Reserve visible to the
// consumer.
func (r *Ring) Publish() {
	next := (r.nextHead + 1) % stepconf.SegmentBufferSize
	r.nextHead = next
	atomic.StoreUint32(&r.head, next)
}

// Peek returns the segment the consumer should tick next, or nil if the
// ring is empty.
func (r *Ring) Peek() *Segment {
	head := atomic.LoadUint32(&r.head)
	tail := atomic.LoadUint32(&r.tail)
	if head == tail {
		return nil
	}
	return &r.buf[tail]
}

// Advance retires the segment the consumer just finished, freeing its slot.
func (r *Ring) Advance() {
	tail := atomic.LoadUint32(&r.tail)
	next := (tail + 1) % stepconf.SegmentBufferSize
	atomic.StoreUint32(&r.tail, next)
}

// SelectAmassLevel picks the step-smoothing level for a dominant-axis
// cycles-per-tick value. Fast dominant-axis rates (small cyclesPerTick)
// need no smoothing; slow rates need progressively more sub-step
// interleaving to keep the tick handler's frequency in a sane band.
func SelectAmassLevel(cyclesPerTick uint32) uint8 {
	switch {
	case cyclesPerTick < stepconf.AmassLevel1:
		return 0
	case cyclesPerTick < stepconf.AmassLevel2:
		return 1
	case cyclesPerTick < stepconf.AmassLevel3:
		return 2
	default:
		return 3
	}
}

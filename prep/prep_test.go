package prep

import (
	"testing"

	"github.com/hrcornwell/stepcore/block"
	"github.com/hrcornwell/stepcore/planner"
	"github.com/hrcornwell/stepcore/segment"
	"github.com/hrcornwell/stepcore/spindle"
	"github.com/hrcornwell/stepcore/stepconf"
)

func newTestPreparer() (*Preparer, *planner.StaticPlanner) {
	pool := block.NewPool()
	ring := segment.NewRing()
	pl := planner.NewStaticPlanner()
	sp := spindle.NewLinearDriver(10000, 1000, 5000)
	return NewPreparer(pool, ring, sp), pl
}

func TestComputeProfileCruiseWhenEntryAtNominal(t *testing.T) {
	pl := planner.NewStaticPlanner()
	b := &planner.Block{
		StepsPerMM:   80,
		Millimeters:  100,
		EntrySpeed:   1000,
		NominalSpeed: 1000,
		Acceleration: 30000,
	}
	pl.Push(b)
	pl.SetExitSpeedSqr(0)

	s := NewState()
	s.CurrentSpeed = b.EntrySpeed
	s.Acceleration = b.Acceleration
	s.MMRemaining = b.Millimeters

	computeProfile(s, b, pl)
	if s.RampType != RampCruise {
		t.Fatalf("RampType = %v, want RampCruise", s.RampType)
	}
	if s.AccelerateUntil != b.Millimeters {
		t.Fatalf("AccelerateUntil = %v, want %v (no accel phase)", s.AccelerateUntil, b.Millimeters)
	}
}

func TestComputeProfileTriangleWhenBlockTooShort(t *testing.T) {
	pl := planner.NewStaticPlanner()
	b := &planner.Block{
		StepsPerMM:   80,
		Millimeters:  1,
		EntrySpeed:   0,
		NominalSpeed: 1000,
		Acceleration: 30000,
	}
	pl.Push(b)
	pl.SetExitSpeedSqr(0)

	s := NewState()
	s.CurrentSpeed = b.EntrySpeed
	s.Acceleration = b.Acceleration
	s.MMRemaining = b.Millimeters

	computeProfile(s, b, pl)
	if s.RampType != RampAccel {
		t.Fatalf("RampType = %v, want RampAccel (triangle starts accelerating)", s.RampType)
	}
	if s.AccelerateUntil != s.DecelerateAfter {
		t.Fatalf("triangle profile should have AccelerateUntil == DecelerateAfter, got %v vs %v",
			s.AccelerateUntil, s.DecelerateAfter)
	}
	if s.MaximumSpeed >= b.NominalSpeed {
		t.Fatalf("triangle peak speed %v should stay below nominal %v", s.MaximumSpeed, b.NominalSpeed)
	}
}

func TestFillSegmentBufferConservesStepCount(t *testing.T) {
	pr, pl := newTestPreparer()
	b := &planner.Block{
		StepCount:    [stepconf.NAxis]uint32{800, 0, 0},
		StepsPerMM:   80,
		Millimeters:  10,
		EntrySpeed:   0,
		NominalSpeed: 2000,
		Acceleration: 60000,
	}
	pl.Push(b)
	pl.SetExitSpeedSqr(0)

	// Keep pumping and draining the ring until the block is fully consumed.
	var totalSteps uint32
	ring := pr.ringForTest()
	for i := 0; i < 1000; i++ {
		pr.FillSegmentBuffer(pl, false)
		for {
			seg := ring.Peek()
			if seg == nil {
				break
			}
			totalSteps += uint32(seg.NStep)
			ring.Advance()
		}
		if !pr.InternalState().HasBlock() && pl.CurrentBlock() == nil {
			break
		}
	}
	if totalSteps == 0 {
		t.Fatal("expected at least one step emitted across prepared segments")
	}
	if totalSteps != b.StepCount[0] {
		t.Fatalf("emitted %d steps across all segments, want exactly the block's %d", totalSteps, b.StepCount[0])
	}
}

func (pr *Preparer) ringForTest() *segment.Ring {
	return pr.ring
}

func TestFeedHoldDecelatesAndRetainsBlock(t *testing.T) {
	pl := planner.NewStaticPlanner()
	b := &planner.Block{
		StepCount:    [stepconf.NAxis]uint32{8000, 0, 0},
		StepsPerMM:   80,
		Millimeters:  100,
		EntrySpeed:   1000,
		NominalSpeed: 1000,
		Acceleration: 30000,
	}
	pl.Push(b)
	pl.SetExitSpeedSqr(0)

	// computeProfile must switch to a decel-to-zero ramp under a feed hold
	// instead of running the block to its natural end.
	s := NewState()
	s.CurrentSpeed = b.EntrySpeed
	s.Acceleration = b.Acceleration
	s.MMRemaining = b.Millimeters
	s.RecalcFlag |= RecalcHoldPartial

	computeProfile(s, b, pl)
	if s.RampType != RampDecel {
		t.Fatalf("RampType = %v, want RampDecel under feed hold", s.RampType)
	}
	if s.ExitSpeed != 0 {
		t.Fatalf("ExitSpeed = %v, want 0 (decelerating to a stop)", s.ExitSpeed)
	}
	if s.MMComplete <= 0 || s.MMComplete >= b.Millimeters {
		t.Fatalf("MMComplete = %v, want a partial distance strictly within the block", s.MMComplete)
	}
}

func TestSyncHoldLatchesEndMotionOnBottomOut(t *testing.T) {
	pr, pl := newTestPreparer()
	b := &planner.Block{
		StepCount:    [stepconf.NAxis]uint32{8000, 0, 0},
		StepsPerMM:   80,
		Millimeters:  100,
		EntrySpeed:   1000,
		NominalSpeed: 1000,
		Acceleration: 30000,
	}
	pl.Push(b)
	pl.SetExitSpeedSqr(0)

	// Hold requested from before the block even loads: the Preparer must
	// still step it down to a stop (producing real segments along the way)
	// rather than discarding it outright, then latch EndMotion/HoldPartialBlock
	// once the decel bottoms out short of the block's natural end.
	var totalSteps uint32
	ring := pr.ringForTest()
	for i := 0; i < 50 && !pr.InternalState().EndMotion; i++ {
		pr.FillSegmentBuffer(pl, true)
		for {
			seg := ring.Peek()
			if seg == nil {
				break
			}
			totalSteps += uint32(seg.NStep)
			ring.Advance()
		}
	}

	if !pr.InternalState().EndMotion {
		t.Fatal("expected EndMotion to latch once the hold-decel block bottoms out")
	}
	if !pr.InternalState().HoldPartialBlock {
		t.Fatal("expected HoldPartialBlock to latch alongside EndMotion")
	}
	if totalSteps == 0 {
		t.Fatal("expected the hold-decel ramp to emit steps before bottoming out")
	}
	if totalSteps >= b.StepCount[0] {
		t.Fatalf("emitted %d steps, want fewer than the block's %d (hold stopped it short)", totalSteps, b.StepCount[0])
	}

	pr.ClearEndMotion()
	if pr.InternalState().EndMotion || pr.InternalState().HoldPartialBlock {
		t.Fatal("ClearEndMotion should clear both latches")
	}
}

func TestPWMRateAdjustedUsesSpindleComputePWM(t *testing.T) {
	pr, pl := newTestPreparer()
	b := &planner.Block{
		StepCount:       [stepconf.NAxis]uint32{800, 0, 0},
		StepsPerMM:      80,
		Millimeters:     10,
		EntrySpeed:      0,
		NominalSpeed:    2000,
		Acceleration:    60000,
		PWMRateAdjusted: true,
	}
	pl.Push(b)
	pl.SetExitSpeedSqr(0)

	pr.FillSegmentBuffer(pl, false)

	ring := pr.ringForTest()
	var sawNonZeroPWM bool
	for {
		seg := ring.Peek()
		if seg == nil {
			break
		}
		if seg.SpindlePWM != 0 {
			sawNonZeroPWM = true
		}
		ring.Advance()
	}
	if !sawNonZeroPWM {
		t.Fatal("expected at least one segment with a nonzero rate-adjusted SpindlePWM")
	}
}

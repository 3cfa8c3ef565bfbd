package stepper

import (
	"testing"
	"time"

	"github.com/hrcornwell/stepcore/gpio"
	"github.com/hrcornwell/stepcore/planner"
	"github.com/hrcornwell/stepcore/probe"
	"github.com/hrcornwell/stepcore/settings"
	"github.com/hrcornwell/stepcore/spindle"
	"github.com/hrcornwell/stepcore/stepconf"
)

func newTestCore() (*Core, *planner.StaticPlanner, *gpio.Recorder) {
	pl := planner.NewStaticPlanner()
	sp := spindle.NewLinearDriver(24000, 1000, 10000)
	gp := gpio.NewRecorder()
	c := NewCore(pl, sp, probe.NullMonitor{}, gp, settings.Default())
	return c, pl, gp
}

func TestGetRealtimeRateStartsAtZero(t *testing.T) {
	c, _, _ := newTestCore()
	if rate := c.GetRealtimeRate(); rate != 0 {
		t.Fatalf("GetRealtimeRate() = %v, want 0 before any motion", rate)
	}
}

func TestPrepareBufferProducesSegmentsFromPlannerBlock(t *testing.T) {
	c, pl, _ := newTestCore()
	pl.Push(&planner.Block{
		StepCount:    [stepconf.NAxis]uint32{1600, 0, 0},
		StepsPerMM:   80,
		Millimeters:  20,
		EntrySpeed:   0,
		NominalSpeed: 3000,
		Acceleration: 90000,
	})
	pl.SetExitSpeedSqr(0)

	c.PrepareBuffer()
	if c.ring.Empty() {
		t.Fatal("expected PrepareBuffer to have produced at least one segment")
	}
}

func TestControlFlagsSetClear(t *testing.T) {
	c, _, _ := newTestCore()
	c.SetControlFlag(FlagFeedHold)
	if c.ControlFlagsSnapshot()&FlagFeedHold == 0 {
		t.Fatal("FlagFeedHold should be set")
	}
	c.ClearControlFlag(FlagFeedHold)
	if c.ControlFlagsSnapshot()&FlagFeedHold != 0 {
		t.Fatal("FlagFeedHold should be cleared")
	}
}

func TestParkingSetupAndRestorePreservesState(t *testing.T) {
	c, pl, _ := newTestCore()
	pl.Push(&planner.Block{
		StepCount:    [stepconf.NAxis]uint32{800, 0, 0},
		StepsPerMM:   80,
		Millimeters:  10,
		NominalSpeed: 1000,
		Acceleration: 50000,
	})
	pl.SetExitSpeedSqr(0)
	c.PrepareBuffer()

	before := c.prep.InternalState()
	c.ParkingSetupBuffer()
	if c.ControlFlagsSnapshot()&FlagParking == 0 {
		t.Fatal("FlagParking should be set during a parking interlude")
	}
	if c.prep.InternalState() == before {
		t.Fatal("ParkingSetupBuffer should have installed a fresh preparer state")
	}

	c.ParkingRestoreBuffer()
	if c.ControlFlagsSnapshot()&FlagParking != 0 {
		t.Fatal("FlagParking should be cleared after restore")
	}
}

func TestPositionStartsAtOrigin(t *testing.T) {
	c, _, _ := newTestCore()
	pos := c.Position()
	for axis, v := range pos {
		if v != 0 {
			t.Fatalf("Position()[%d] = %d, want 0 before any motion", axis, v)
		}
	}
}

func TestInitAndShutdown(t *testing.T) {
	c, _, _ := newTestCore()
	c.Init()
	time.Sleep(time.Millisecond)
	c.Shutdown()
}

func TestFeedHoldLatchesEndMotionAndResumeClearsIt(t *testing.T) {
	c, pl, _ := newTestCore()
	pl.Push(&planner.Block{
		StepCount:    [stepconf.NAxis]uint32{8000, 0, 0},
		StepsPerMM:   80,
		Millimeters:  100,
		EntrySpeed:   1000,
		NominalSpeed: 1000,
		Acceleration: 30000,
	})
	pl.SetExitSpeedSqr(0)

	c.SetControlFlag(FlagFeedHold)
	for i := 0; i < 50 && c.ControlFlagsSnapshot()&FlagEndMotion == 0; i++ {
		c.PrepareBuffer()
		for !c.ring.Empty() {
			c.ring.Advance()
		}
	}
	if c.ControlFlagsSnapshot()&FlagEndMotion == 0 {
		t.Fatal("expected FlagEndMotion to latch once the hold-decel block bottoms out")
	}

	c.ClearControlFlag(FlagFeedHold)
	c.ClearEndMotion()
	if c.ControlFlagsSnapshot()&FlagEndMotion != 0 {
		t.Fatal("ClearEndMotion should clear FlagEndMotion")
	}
}

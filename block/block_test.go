package block

import (
	"testing"

	"github.com/hrcornwell/stepcore/stepconf"
)

func TestLoadShiftsByMaxAmassLevel(t *testing.T) {
	p := NewPool()
	idx := p.Alloc()

	var steps [stepconf.NAxis]uint32
	steps[0] = 100
	steps[1] = 40
	p.Load(idx, steps, 0x02, false)

	b := p.At(idx)
	want0 := uint32(100) << stepconf.MaxAmassLevel
	if b.Steps[0] != want0 {
		t.Fatalf("Steps[0] = %d, want %d", b.Steps[0], want0)
	}
	want1 := uint32(40) << stepconf.MaxAmassLevel
	if b.Steps[1] != want1 {
		t.Fatalf("Steps[1] = %d, want %d", b.Steps[1], want1)
	}
	if b.StepEventCount != want0 {
		t.Fatalf("StepEventCount = %d, want dominant axis %d", b.StepEventCount, want0)
	}
	if b.DirectionBits != 0x02 {
		t.Fatalf("DirectionBits = %#x, want 0x02", b.DirectionBits)
	}
}

func TestAllocWrapsAroundPool(t *testing.T) {
	p := NewPool()
	n := stepconf.SegmentBufferSize - 1
	first := p.Alloc()
	for i := 1; i < n; i++ {
		p.Alloc()
	}
	wrapped := p.Alloc()
	if wrapped != first {
		t.Fatalf("Alloc after full cycle = %d, want wraparound to %d", wrapped, first)
	}
}

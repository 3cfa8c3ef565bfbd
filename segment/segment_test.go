package segment

import (
	"testing"

	"github.com/hrcornwell/stepcore/stepconf"
)

func TestRingEmptyInitially(t *testing.T) {
	r := NewRing()
	if !r.Empty() {
		t.Fatal("new ring should be empty")
	}
	if r.Peek() != nil {
		t.Fatal("Peek on empty ring should return nil")
	}
}

func TestRingReservePublishPeekAdvance(t *testing.T) {
	r := NewRing()
	s := r.Reserve()
	if s == nil {
		t.Fatal("Reserve on fresh ring returned nil")
	}
	s.NStep = 42
	r.Publish()

	if r.Empty() {
		t.Fatal("ring should not be empty after publish")
	}
	got := r.Peek()
	if got == nil || got.NStep != 42 {
		t.Fatalf("Peek = %+v, want NStep 42", got)
	}
	r.Advance()
	if !r.Empty() {
		t.Fatal("ring should be empty after advancing the only segment")
	}
}

func TestRingFillsAndRejectsOverfill(t *testing.T) {
	r := NewRing()
	count := 0
	for {
		s := r.Reserve()
		if s == nil {
			break
		}
		r.Publish()
		count++
		if count > stepconf.SegmentBufferSize {
			t.Fatal("ring never reported full")
		}
	}
	if count != stepconf.SegmentBufferSize-1 {
		t.Fatalf("filled %d segments, want %d (one slot sacrificed for full/empty disambiguation)", count, stepconf.SegmentBufferSize-1)
	}
	if !r.Full() {
		t.Fatal("ring should report full")
	}
}

func TestSelectAmassLevelMonotonic(t *testing.T) {
	cases := []struct {
		cycles uint32
		want   uint8
	}{
		{stepconf.AmassLevel1 - 1, 0},
		{stepconf.AmassLevel1, 1},
		{stepconf.AmassLevel2, 2},
		{stepconf.AmassLevel3, 3},
		{stepconf.AmassLevel3 * 10, 3},
	}
	for _, c := range cases {
		if got := SelectAmassLevel(c.cycles); got != c.want {
			t.Errorf("SelectAmassLevel(%d) = %d, want %d", c.cycles, got, c.want)
		}
	}
}

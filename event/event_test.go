package event

import "testing"

var stepCount uint64

type recorder struct {
	iarg int
	time uint64
}

var (
	recA recorder
	recB recorder
	recC recorder
)

func (r *recorder) aCallback(iarg int) {
	r.iarg = iarg
	r.time = stepCount
}

func (r *recorder) bCallback(iarg int) {
	r.iarg = iarg
	r.time = stepCount
}

func initTest() {
	stepCount = 0
	recA = recorder{}
	recB = recorder{}
	recC = recorder{}
}

func TestAddEventFiresAtCorrectTime(t *testing.T) {
	initTest()
	l := NewList()
	l.AddEvent(&recA, recA.aCallback, 10, 1)
	for range 20 {
		stepCount++
		l.Advance(1)
	}
	if recA.time != 10 {
		t.Errorf("event fired at step %d, want 10", recA.time)
	}
	if recA.iarg != 1 {
		t.Errorf("event iarg = %d, want 1", recA.iarg)
	}
}

func TestAddEventOrdersTwoEvents(t *testing.T) {
	initTest()
	l := NewList()
	l.AddEvent(&recA, recA.aCallback, 10, 1)
	l.AddEvent(&recB, recB.bCallback, 5, 2)
	for range 20 {
		stepCount++
		l.Advance(1)
	}
	if recA.time != 10 {
		t.Errorf("recA fired at %d, want 10", recA.time)
	}
	if recB.time != 5 {
		t.Errorf("recB fired at %d, want 5", recB.time)
	}
}

func TestZeroDelayFiresImmediately(t *testing.T) {
	initTest()
	l := NewList()
	l.AddEvent(&recC, recC.aCallback, 0, 7)
	if recC.iarg != 7 {
		t.Fatalf("zero-delay event did not fire inline, iarg = %d", recC.iarg)
	}
}

func TestCancelEventRemovesIt(t *testing.T) {
	initTest()
	l := NewList()
	l.AddEvent(&recA, recA.aCallback, 10, 1)
	l.CancelEvent(&recA, 1)
	for range 20 {
		stepCount++
		l.Advance(1)
	}
	if recA.time != 0 {
		t.Errorf("cancelled event fired anyway at %d", recA.time)
	}
}

func TestCancelEventGivesTimeToNext(t *testing.T) {
	initTest()
	l := NewList()
	l.AddEvent(&recA, recA.aCallback, 5, 1)
	l.AddEvent(&recB, recB.bCallback, 10, 2)
	l.CancelEvent(&recA, 1)
	for range 20 {
		stepCount++
		l.Advance(1)
	}
	if recB.time != 10 {
		t.Errorf("recB fired at %d after cancel, want 10 (unaffected)", recB.time)
	}
}

package event

/*
 * stepcore - Event scheduler
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

// Time-ordered event scheduler used for dwell and delay scheduling (the
// idle lock timeout armed by stepper.Core.ArmIdleLock) and any other
// foreground wait that should not block the goroutine that requested it.
// Owner is any comparable value identifying who scheduled the event (used
// by CancelEvent to find it again), not tied to any particular device type.

type Callback = func(iarg int)

type Event struct {
	time  int // ticks until this event fires
	owner any // who scheduled it
	cb    Callback
	iarg  int
	prev  *Event
	next  *Event
}

// List is a time-ordered singly-threaded doubly-linked list of pending
// events, relative-timed: each event's time field holds the delta from the
// event before it, so Advance only needs to decrement the head.
type List struct {
	head *Event
	tail *Event
}

// NewList returns an empty event list.
func NewList() *List {
	return &List{}
}

// AddEvent schedules cb(iarg) to run after the given number of ticks. A
// zero delay runs cb immediately, inline.
func (l *List) AddEvent(owner any, cb Callback, ticks int, iarg int) {
	if ticks == 0 {
		cb(iarg)
		return
	}

	ev := &Event{owner: owner, cb: cb, time: ticks, iarg: iarg}

	evptr := l.head
	if evptr == nil {
		l.head = ev
		l.tail = ev
		return
	}

	for evptr != nil {
		if ev.time <= evptr.time {
			evptr.time -= ev.time
			ev.prev = evptr.prev
			ev.next = evptr
			evptr.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				l.head = ev
			}
			return
		}
		ev.time -= evptr.time
		evptr = evptr.next
	}

	ev.prev = l.tail
	l.tail.next = ev
	l.tail = ev
}

// CancelEvent removes the first pending event matching owner and iarg, if
// any.
func (l *List) CancelEvent(owner any, iarg int) {
	evptr := l.head
	if evptr == nil {
		return
	}

	for evptr != nil {
		if evptr.owner == owner && evptr.iarg == iarg {
			nxt := evptr.next
			if nxt != nil {
				nxt.time += evptr.time
				nxt.prev = evptr.prev
			} else {
				l.tail = evptr.prev
			}
			if evptr.prev != nil {
				evptr.prev.next = evptr.next
			} else {
				l.head = evptr.next
			}
			return
		}
		evptr = evptr.next
	}
}

// Advance moves time forward by t ticks, firing every event whose time has
// elapsed.
func (l *List) Advance(t int) {
	evptr := l.head
	if evptr == nil {
		return
	}
	evptr.time -= t
	for evptr != nil && evptr.time <= 0 {
		evptr.cb(evptr.iarg)
		l.head = evptr.next
		evptr = l.head
		if evptr != nil {
			evptr.prev = nil
		} else {
			l.tail = nil
		}
	}
}

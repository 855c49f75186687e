// Package schedtest provides a manually advanced scheduler for tests.
package schedtest

import (
	"sync"
	"time"

	"github.com/Perceptus-Labs/voicenav-go-sdk/sched"
)

// Fake is a sched.Scheduler whose clock only moves on Advance. Callbacks run
// synchronously inside Advance, in due-time order.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*fakeTask
}

type fakeTask struct {
	fake    *Fake
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

var _ sched.Scheduler = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) sched.Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	t := &fakeTask{fake: f, at: f.now.Add(d), seq: f.seq, f: fn}
	f.tasks = append(f.tasks, t)
	return t
}

// Advance moves the clock forward by d, running every task that becomes due,
// including tasks scheduled by callbacks within the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDue(target)
		if next == nil {
			f.now = target
			f.compact()
			f.mu.Unlock()
			return
		}
		if next.at.After(f.now) {
			f.now = next.at
		}
		next.fired = true
		fn := next.f
		f.mu.Unlock()

		fn()
	}
}

// Pending returns the number of scheduled tasks that have neither fired nor stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, t := range f.tasks {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (f *Fake) nextDue(target time.Time) *fakeTask {
	var next *fakeTask
	for _, t := range f.tasks {
		if t.fired || t.stopped || t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (f *Fake) compact() {
	live := f.tasks[:0]
	for _, t := range f.tasks {
		if !t.fired && !t.stopped {
			live = append(live, t)
		}
	}
	f.tasks = live
}

func (t *fakeTask) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

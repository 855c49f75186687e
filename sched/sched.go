// Package sched models deferred work as explicit, cancellable tasks so timer
// driven behaviour (flush windows, settle delays, animation phases) can be
// driven deterministically in tests.
package sched

import (
	"context"
	"sync"
	"time"
)

// Task is a scheduled callback. Stop reports whether the call prevented the
// callback from running.
type Task interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
	Now() time.Time
}

type realScheduler struct{}

// Real returns the wall-clock scheduler.
func Real() Scheduler {
	return realScheduler{}
}

func (realScheduler) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

func (realScheduler) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d on the scheduler's clock or until ctx is done.
func Sleep(ctx context.Context, s Scheduler, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	done := make(chan struct{})
	task := s.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		task.Stop()
		return ctx.Err()
	}
}

// Debouncer keeps at most one pending task. Triggering again cancels the
// pending one, so a burst of triggers settles into a single run.
type Debouncer struct {
	mu    sync.Mutex
	s     Scheduler
	delay time.Duration
	task  Task
	gen   uint64
}

func NewDebouncer(s Scheduler, delay time.Duration) *Debouncer {
	return &Debouncer{s: s, delay: delay}
}

// Trigger schedules f after the debounce delay, cancelling any pending run.
func (d *Debouncer) Trigger(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.task != nil {
		d.task.Stop()
	}
	d.gen++
	gen := d.gen
	d.task = d.s.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// a Stop that lost the race with the timer still invalidates this run
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.task = nil
		d.mu.Unlock()
		f()
	})
}

// Cancel drops the pending run, if any, and reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.task == nil {
		return false
	}
	d.task.Stop()
	d.task = nil
	return true
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.task != nil
}

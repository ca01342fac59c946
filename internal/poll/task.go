package poll

import (
	"sync"
	"time"
)

// Task runs a callback on a fixed cadence until the callback asks to stop or
// the task is cancelled.
type Task struct {
	mu       sync.Mutex
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Start schedules fn to run every interval. The first invocation happens after
// one full interval, not immediately. fn keeps the task alive by returning
// true; returning false stops the loop without an explicit Cancel.
func Start(interval time.Duration, fn func() bool) *Task {
	t := &Task{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.run(fn)
	return t
}

// Cancel stops the task. It blocks until the loop has exited, so no callback
// invocation can begin after Cancel returns. Cancelling twice, or cancelling
// a task that already stopped itself, is harmless. Cancel must not be called
// from inside the callback; the callback stops the task by returning false.
func (t *Task) Cancel() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

// SetInterval changes the cadence for subsequent ticks. The tick currently
// being waited on keeps its original deadline.
func (t *Task) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	t.mu.Lock()
	t.interval = interval
	t.mu.Unlock()
}

// Interval reports the current cadence.
func (t *Task) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) run(fn func() bool) {
	defer close(t.done)

	timer := time.NewTimer(t.Interval())
	defer timer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-timer.C:
		}

		// The timer may have fired concurrently with Cancel; re-check so a
		// cancelled task never invokes the callback again.
		select {
		case <-t.stop:
			return
		default:
		}

		if !fn() {
			return
		}
		timer.Reset(t.Interval())
	}
}

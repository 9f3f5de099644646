package presence

import (
	"sync"
	"time"
)

// Local keystroke idle window before a single typing.stopped fires.
const debounceWindow = 3 * time.Second

// Debouncer turns a stream of keystrokes into at most one start notification
// and one stop notification per typing burst. Keystroke arms (or re-arms) a
// timer; if it expires untouched, onStop runs once. Stop cancels the pending
// timer explicitly, for send and session teardown.
type Debouncer struct {
	onStart func()
	onStop  func()

	mu     sync.Mutex
	timer  *time.Timer
	active bool
}

func NewDebouncer(onStart, onStop func()) *Debouncer {
	return &Debouncer{onStart: onStart, onStop: onStop}
}

// Keystroke registers user input, firing onStart on the first stroke of a
// burst and resetting the idle timer on every stroke.
func (d *Debouncer) Keystroke() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		d.active = true
		if d.onStart != nil {
			d.onStart()
		}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(debounceWindow, d.expire)
}

func (d *Debouncer) expire() {
	d.mu.Lock()
	wasActive := d.active
	d.active = false
	d.timer = nil
	d.mu.Unlock()
	if wasActive && d.onStop != nil {
		d.onStop()
	}
}

// Stop cancels any pending timer and, if a burst was active, fires onStop.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	wasActive := d.active
	d.active = false
	d.mu.Unlock()
	if wasActive && d.onStop != nil {
		d.onStop()
	}
}

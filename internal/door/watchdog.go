package door

import (
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// Watchdog is the one-shot transit timer. At most one arm is live at a time;
// every Arm or Cancel bumps the epoch so a callback from a superseded timer
// can be recognised and ignored.
//
// Watchdog is not safe for concurrent use. The Controller guards it with its
// state lock.
type Watchdog struct {
	clock    Clock
	timer    Timer
	epoch    uint64
	armed    bool
	transit  logic.Status
	deadline time.Time
}

// NewWatchdog creates a disarmed watchdog.
func NewWatchdog(clock Clock) *Watchdog {
	return &Watchdog{clock: clock}
}

// Arm cancels any live timer and schedules fire after d. The callback receives
// the epoch of this arm, to be passed back to Claim.
func (w *Watchdog) Arm(d time.Duration, transit logic.Status, fire func(epoch uint64)) uint64 {
	w.Cancel()

	epoch := w.epoch
	w.armed = true
	w.transit = transit
	w.deadline = w.clock.Now().Add(d)
	w.timer = w.clock.AfterFunc(d, func() { fire(epoch) })
	return epoch
}

// Cancel stops the live timer, if any.
func (w *Watchdog) Cancel() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.armed = false
	w.transit = ""
	w.deadline = time.Time{}
	w.epoch++
}

// Claim reports whether epoch belongs to the live arm and, if so, disarms it.
// A false return means the expiry is stale and must be ignored.
func (w *Watchdog) Claim(epoch uint64) bool {
	if !w.armed || epoch != w.epoch {
		return false
	}
	w.timer = nil
	w.armed = false
	w.transit = ""
	w.deadline = time.Time{}
	w.epoch++
	return true
}

// Armed reports whether a timer is live.
func (w *Watchdog) Armed() bool {
	return w.armed
}

// Transit returns the status that armed the live timer.
func (w *Watchdog) Transit() logic.Status {
	return w.transit
}

// Deadline returns when the live timer is due, or the zero time.
func (w *Watchdog) Deadline() time.Time {
	return w.deadline
}

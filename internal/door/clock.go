package door

import "time"

// Clock abstracts time so the watchdog and pulse gaps can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Sleep(d time.Duration)
}

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was already stopped.
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

package gpio

import (
	"errors"
	"sync"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// FakeSensors is a test double whose sensor levels are set by the test.
// Set raises an edge through the registered handler like the real watcher does.
type FakeSensors struct {
	mu     sync.Mutex
	snap   logic.Snapshot
	onEdge EdgeHandler

	// ReadError, if set, will be returned by Read().
	ReadError error

	// Reads counts calls to Read.
	Reads int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSensors creates FakeSensors with an initial reading.
func NewFakeSensors(initial logic.Snapshot) *FakeSensors {
	return &FakeSensors{snap: initial}
}

// OnEdge registers the handler that Set notifies.
func (f *FakeSensors) OnEdge(h EdgeHandler) {
	f.mu.Lock()
	f.onEdge = h
	f.mu.Unlock()
}

// Read returns the current levels.
func (f *FakeSensors) Read() (logic.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return logic.Snapshot{}, f.ReadError
	}
	return f.snap, nil
}

// Set changes the level of one sensor and raises an edge if it changed.
func (f *FakeSensors) Set(sensor logic.Sensor, asserted bool) {
	f.mu.Lock()
	changed := false
	switch sensor {
	case logic.SensorClosed:
		changed = f.snap.Closed != asserted
		f.snap.Closed = asserted
	case logic.SensorOpen:
		changed = f.snap.Open != asserted
		f.snap.Open = asserted
	}
	h := f.onEdge
	f.mu.Unlock()

	if changed && h != nil {
		h(sensor)
	}
}

// SetSnapshot replaces both levels without raising edges.
func (f *FakeSensors) SetSnapshot(s logic.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

// Close marks the sensors as closed.
func (f *FakeSensors) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeRelay records pulses instead of driving hardware. It never sleeps.
type FakeRelay struct {
	mu     sync.Mutex
	pulses []time.Duration

	// PulseError, if set, will be returned by Pulse.
	PulseError error

	// OnPulse, if set, is called for every pulse before it is recorded.
	OnPulse func(d time.Duration)

	Closed bool
}

// NewFakeRelay creates a FakeRelay for testing.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

// Pulse records the pulse duration.
func (f *FakeRelay) Pulse(d time.Duration) error {
	if d <= 0 {
		return errors.New("pulse duration must be positive")
	}
	if f.OnPulse != nil {
		f.OnPulse(d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PulseError != nil {
		return f.PulseError
	}
	f.pulses = append(f.pulses, d)
	return nil
}

// Pulses returns a copy of the recorded pulse durations.
func (f *FakeRelay) Pulses() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.pulses...)
}

// Reset clears recorded pulses.
func (f *FakeRelay) Reset() {
	f.mu.Lock()
	f.pulses = nil
	f.mu.Unlock()
}

// Close marks the relay as closed.
func (f *FakeRelay) Close() error {
	f.Closed = true
	return nil
}

// FakeLEDs records every pattern shown.
type FakeLEDs struct {
	mu      sync.Mutex
	history []logic.LEDPattern
}

// NewFakeLEDs creates FakeLEDs for testing.
func NewFakeLEDs() *FakeLEDs {
	return &FakeLEDs{}
}

// Show records the pattern.
func (f *FakeLEDs) Show(p logic.LEDPattern) error {
	f.mu.Lock()
	f.history = append(f.history, p)
	f.mu.Unlock()
	return nil
}

// Last returns the most recent pattern and whether any was shown.
func (f *FakeLEDs) Last() (logic.LEDPattern, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return logic.LEDPattern{}, false
	}
	return f.history[len(f.history)-1], true
}

// History returns a copy of every pattern shown.
func (f *FakeLEDs) History() []logic.LEDPattern {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.LEDPattern(nil), f.history...)
}

// Close turns the fake off.
func (f *FakeLEDs) Close() error {
	return f.Show(logic.LEDPattern{})
}

package mqtt

import (
	"sync"

	"github.com/sweeney/garage-door/internal/logic"
)

// FakePublisher records published events for test assertions.
// It is safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	events         []logic.Event
	payloads       [][]byte
	systemEvents   []SystemEvent
	systemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// OnCommand receives commands injected with Command.
	OnCommand CommandHandler
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the door event.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// Command simulates a message arriving on TopicCommand. It reports whether
// the payload parsed and a handler was set.
func (f *FakePublisher) Command(payload []byte) bool {
	name, ok := ParseCommand(payload)
	if !ok || f.OnCommand == nil {
		return false
	}
	f.OnCommand(name)
	return true
}

// Events returns the door events published so far.
func (f *FakePublisher) Events() []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Event(nil), f.events...)
}

// Payloads returns the JSON payloads for door events.
func (f *FakePublisher) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// SystemEvents returns the system events published so far.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns the JSON payloads for system events.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SetConnected changes the value IsConnected reports.
func (f *FakePublisher) SetConnected(c bool) {
	f.mu.Lock()
	f.Connected = c
	f.mu.Unlock()
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
	f.payloads = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

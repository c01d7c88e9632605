// Package gpio provides the door's hardware boundary with abstraction for testing.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// Sensors reads the two position sensors.
type Sensors interface {
	// Read returns the logical sensor states (true = asserted).
	Read() (logic.Snapshot, error)

	// Close releases GPIO resources.
	Close() error
}

// EdgeHandler receives the identity of a sensor that changed level.
// It is called from the GPIO watcher goroutine and must not block.
type EdgeHandler func(sensor logic.Sensor)

// Relay drives the door opener's momentary contact.
type Relay interface {
	// Pulse asserts the relay for d and then releases it. It blocks for d.
	Pulse(d time.Duration) error

	// Close releases GPIO resources, leaving the relay released.
	Close() error
}

// LEDs drives the status indicator.
type LEDs interface {
	Show(p logic.LEDPattern) error
	Close() error
}

// Pin definitions (BCM numbering). The original board wiring used physical
// pins 29, 31 and 33, which are BCM 5, 6 and 13.
const (
	DefaultChip      = "gpiochip0"
	DefaultPinClosed = 5
	DefaultPinOpen   = 6
	DefaultPinRelay  = 13
	DefaultPinRed    = 17
	DefaultPinYellow = 27
	DefaultPinGreen  = 22
)

// SensorConfig describes how the position sensors are wired.
type SensorConfig struct {
	Chip      string
	PinClosed int
	PinOpen   int
	ActiveLow bool          // true for reed switches pulling the line to ground
	Debounce  time.Duration // kernel debounce period, 0 disables
}

// LEDConfig holds indicator pins. A negative pin disables that LED.
type LEDConfig struct {
	Chip   string
	Red    int
	Yellow int
	Green  int
}

// Enabled reports whether any indicator pin is configured.
func (c LEDConfig) Enabled() bool {
	return c.Red >= 0 || c.Yellow >= 0 || c.Green >= 0
}

// NoopLEDs implements LEDs but does nothing.
// Used when no indicator pins are configured.
type NoopLEDs struct{}

// Show implements LEDs.Show.
func (NoopLEDs) Show(logic.LEDPattern) error { return nil }

// Close implements LEDs.Close.
func (NoopLEDs) Close() error { return nil }

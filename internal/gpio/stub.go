//go:build !linux

package gpio

import (
	"errors"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealSensors is not available on non-Linux platforms.
type RealSensors struct{}

// NewRealSensors returns an error on non-Linux platforms.
func NewRealSensors(cfg SensorConfig, onEdge EdgeHandler) (*RealSensors, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (s *RealSensors) Read() (logic.Snapshot, error) {
	return logic.Snapshot{}, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (s *RealSensors) Close() error {
	return nil
}

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns an error on non-Linux platforms.
func NewRealRelay(chip string, pin int) (*RealRelay, error) {
	return nil, errUnsupported
}

// Pulse is not implemented on non-Linux platforms.
func (r *RealRelay) Pulse(d time.Duration) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealRelay) Close() error {
	return nil
}

// RealLEDs is not available on non-Linux platforms.
type RealLEDs struct{}

// NewRealLEDs returns an error on non-Linux platforms.
func NewRealLEDs(cfg LEDConfig) (*RealLEDs, error) {
	return nil, errUnsupported
}

// Show is not implemented on non-Linux platforms.
func (l *RealLEDs) Show(p logic.LEDPattern) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (l *RealLEDs) Close() error {
	return nil
}

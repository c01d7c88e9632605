//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// RealSensors reads the position sensors from actual hardware and reports
// edges on either line through an EdgeHandler.
type RealSensors struct {
	closedLine *gpiocdev.Line
	openLine   *gpiocdev.Line
	pinClosed  int
	pinOpen    int
	onEdge     EdgeHandler
}

// NewRealSensors requests both sensor lines with both-edge detection.
// onEdge may be nil, in which case the lines are only polled via Read.
func NewRealSensors(cfg SensorConfig, onEdge EdgeHandler) (*RealSensors, error) {
	if cfg.Chip == "" {
		cfg.Chip = DefaultChip
	}

	s := &RealSensors{pinClosed: cfg.PinClosed, pinOpen: cfg.PinOpen, onEdge: onEdge}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if onEdge != nil {
		opts = append(opts, gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(s.handleEvent))
		if cfg.Debounce > 0 {
			opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
		}
	}

	var err error
	s.closedLine, err = gpiocdev.RequestLine(cfg.Chip, cfg.PinClosed, opts...)
	if err != nil {
		return nil, fmt.Errorf("request closed-sensor pin %d: %w", cfg.PinClosed, err)
	}

	s.openLine, err = gpiocdev.RequestLine(cfg.Chip, cfg.PinOpen, opts...)
	if err != nil {
		s.closedLine.Close()
		return nil, fmt.Errorf("request open-sensor pin %d: %w", cfg.PinOpen, err)
	}

	return s, nil
}

func (s *RealSensors) handleEvent(evt gpiocdev.LineEvent) {
	// Match on configured pins: the line fields are still being assigned
	// when the first events can arrive.
	switch evt.Offset {
	case s.pinClosed:
		s.onEdge(logic.SensorClosed)
	case s.pinOpen:
		s.onEdge(logic.SensorOpen)
	}
}

// Read returns the logical sensor states. Active level is handled by the line config.
func (s *RealSensors) Read() (logic.Snapshot, error) {
	closed, err := s.closedLine.Value()
	if err != nil {
		return logic.Snapshot{}, fmt.Errorf("read closed-sensor pin: %w", err)
	}

	open, err := s.openLine.Value()
	if err != nil {
		return logic.Snapshot{}, fmt.Errorf("read open-sensor pin: %w", err)
	}

	return logic.Snapshot{Closed: closed == 1, Open: open == 1}, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (s *RealSensors) Close() error {
	var errs []error
	for name, line := range map[string]*gpiocdev.Line{"closed-sensor": s.closedLine, "open-sensor": s.openLine} {
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealRelay drives the opener relay through a single output line.
type RealRelay struct {
	line *gpiocdev.Line
}

// NewRealRelay requests the relay pin as an output, initially released.
func NewRealRelay(chip string, pin int) (*RealRelay, error) {
	if chip == "" {
		chip = DefaultChip
	}
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}
	return &RealRelay{line: line}, nil
}

// Pulse asserts the relay for d.
func (r *RealRelay) Pulse(d time.Duration) error {
	if err := r.line.SetValue(1); err != nil {
		return fmt.Errorf("assert relay: %w", err)
	}
	time.Sleep(d)
	if err := r.line.SetValue(0); err != nil {
		return fmt.Errorf("release relay: %w", err)
	}
	return nil
}

// Close releases the relay and the line.
func (r *RealRelay) Close() error {
	var errs []error
	if err := r.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("release relay: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLEDs drives up to three indicator LEDs as one line request.
type RealLEDs struct {
	lines *gpiocdev.Lines
	// slot maps red, yellow, green to their index in lines; -1 = not wired.
	slot [3]int
}

// NewRealLEDs requests the configured LED pins as outputs, all off.
func NewRealLEDs(cfg LEDConfig) (*RealLEDs, error) {
	if cfg.Chip == "" {
		cfg.Chip = DefaultChip
	}

	l := &RealLEDs{slot: [3]int{-1, -1, -1}}
	var offsets []int
	for i, pin := range []int{cfg.Red, cfg.Yellow, cfg.Green} {
		if pin < 0 {
			continue
		}
		l.slot[i] = len(offsets)
		offsets = append(offsets, pin)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("no indicator pins configured")
	}

	lines, err := gpiocdev.RequestLines(cfg.Chip, offsets, gpiocdev.AsOutput(make([]int, len(offsets))...))
	if err != nil {
		return nil, fmt.Errorf("request indicator pins %v: %w", offsets, err)
	}
	l.lines = lines
	return l, nil
}

// Show lights exactly the LEDs in p.
func (l *RealLEDs) Show(p logic.LEDPattern) error {
	values := make([]int, len(l.lines.Offsets()))
	for i, on := range []bool{p.Red, p.Yellow, p.Green} {
		if l.slot[i] >= 0 && on {
			values[l.slot[i]] = 1
		}
	}
	if err := l.lines.SetValues(values); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	return nil
}

// Close turns all LEDs off and releases the lines.
func (l *RealLEDs) Close() error {
	var errs []error
	if err := l.Show(logic.LEDPattern{}); err != nil {
		errs = append(errs, err)
	}
	if err := l.lines.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close indicator pins: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// Package door is the garage door state machine. It owns the canonical status,
// consumes sensor edges and watchdog expiries, and turns open/close requests
// into relay pulses.
package door

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/metrics"
	"github.com/sweeney/garage-door/internal/settings"
)

// ErrUnknownCommand is returned by Command for anything but open, close or refresh.
var ErrUnknownCommand = errors.New("unknown command")

// Notifier receives status events. Notify must not block.
type Notifier interface {
	Notify(event logic.Event)
}

// Config wires a Controller to its collaborators.
type Config struct {
	Sensors  gpio.Sensors
	Relay    gpio.Relay
	LEDs     gpio.LEDs       // nil = no indicator
	Settings *settings.Store // required
	Notifier Notifier        // nil = no notifications
	Metrics  *metrics.Metrics
	Clock    Clock // nil = wall clock
}

// State is a point-in-time view of the controller.
type State struct {
	Status           logic.Status
	Sensors          logic.Snapshot
	WatchdogArmed    bool
	WatchdogDeadline time.Time
}

// Controller is the door state machine.
type Controller struct {
	sensors  gpio.Sensors
	relay    gpio.Relay
	leds     gpio.LEDs
	settings *settings.Store
	notifier Notifier
	metrics  *metrics.Metrics
	clock    Clock

	// mu guards everything below. Edge handling, watchdog expiry and plan
	// decisions all run under it; relay pulses never do.
	mu        sync.Mutex
	status    logic.Status
	snap      logic.Snapshot
	watchdog  *Watchdog
	announced bool

	// actuateMu serializes whole pulse sequences so two requests cannot interleave.
	actuateMu sync.Mutex
}

// New creates a Controller in the Unknown status. Call Probe once before
// feeding edges so the initial status is resolved and announced.
func New(cfg Config) *Controller {
	c := &Controller{
		sensors:  cfg.Sensors,
		relay:    cfg.Relay,
		leds:     cfg.LEDs,
		settings: cfg.Settings,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
		status:   logic.StatusUnknown,
	}
	if c.leds == nil {
		c.leds = gpio.NoopLEDs{}
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	c.watchdog = NewWatchdog(c.clock)
	return c
}

// Probe reads the sensors with no edge identified and announces the result.
func (c *Controller) Probe() (logic.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.sensors.Read()
	if err != nil {
		return c.status, fmt.Errorf("probe sensors: %w", err)
	}
	c.snap = snap

	d := logic.Decide(c.status, snap, logic.SensorNone)
	c.apply(d, logic.CauseStartup)
	return c.status, nil
}

// HandleEdge processes one sensor edge synchronously.
func (c *Controller) HandleEdge(sensor logic.Sensor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.sensors.Read()
	if err != nil {
		log.Printf("door: read sensors after %s edge: %v", sensor, err)
		return
	}
	c.snap = snap

	d := logic.Decide(c.status, snap, sensor)
	if d.Status == c.status && c.announced {
		return
	}
	c.apply(d, logic.CauseEdge)
}

// Run applies queued edges in order until ctx is done.
func (c *Controller) Run(ctx context.Context, q *EdgeQueue) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sensor := <-q.ch:
			c.HandleEdge(sensor)
		}
	}
}

// expire is the watchdog callback. It runs on the timer goroutine.
func (c *Controller) expire(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.watchdog.Claim(epoch) {
		return
	}
	next, ok := logic.Expire(c.status)
	if !ok {
		return
	}

	log.Printf("door: no terminal sensor within transit time while %s", c.status)
	c.metrics.Expired()
	c.apply(logic.Decision{Status: next}, logic.CauseWatchdog)
}

// apply commits a status and performs its side effects. c.mu must be held.
func (c *Controller) apply(d logic.Decision, cause logic.Cause) {
	prev := c.status
	c.status = d.Status
	c.announced = true

	c.watchdog.Cancel()
	if d.Arm {
		transit := c.settings.Current().TransitionTime
		c.watchdog.Arm(transit, d.Status, c.expire)
	}

	log.Printf("door: %s -> %s (%s, closed=%v open=%v)", prev, d.Status, cause, c.snap.Closed, c.snap.Open)

	if err := c.leds.Show(logic.PatternFor(d.Status)); err != nil {
		log.Printf("door: indicator: %v", err)
	}
	c.metrics.StatusChanged(d.Status)
	c.notify(d.Status, true, cause)
}

func (c *Controller) notify(s logic.Status, isNew bool, cause logic.Cause) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(logic.Event{
		Timestamp: c.clock.Now(),
		Status:    s,
		IsNew:     isNew,
		Cause:     cause,
		Sensors:   c.snap,
	})
}

// Status returns the canonical status.
func (c *Controller) Status() logic.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State returns a point-in-time view of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Status:           c.status,
		Sensors:          c.snap,
		WatchdogArmed:    c.watchdog.Armed(),
		WatchdogDeadline: c.watchdog.Deadline(),
	}
}

// RequestOpen pulses the relay as needed to open the door.
func (c *Controller) RequestOpen() (logic.Plan, error) {
	return c.Request(logic.ActionOpen)
}

// RequestClose pulses the relay as needed to close the door.
func (c *Controller) RequestClose() (logic.Plan, error) {
	return c.Request(logic.ActionClose)
}

// Request decides the actuation plan for action against the current status
// and issues its pulses. It returns once the pulses are done; the resulting
// status arrives later through sensor edges or the watchdog.
func (c *Controller) Request(action logic.Action) (logic.Plan, error) {
	c.actuateMu.Lock()
	defer c.actuateMu.Unlock()

	c.mu.Lock()
	plan := logic.PlanFor(c.status, action)
	pulse := c.settings.Current().PulseDuration
	c.mu.Unlock()

	c.metrics.Request(plan)
	log.Printf("door: %s requested while %s: %s", action, plan.From, plan.Message)

	if err := c.actuate(plan.Pulses, pulse); err != nil {
		return plan, err
	}
	return plan, nil
}

// actuate issues n pulses of length d, waiting d between them. The first
// pulse of a pair only halts motion; without the gap both would merge into
// one long assertion.
func (c *Controller) actuate(n int, d time.Duration) error {
	for i := 0; i < n; i++ {
		if i > 0 {
			c.clock.Sleep(d)
		}
		if err := c.relay.Pulse(d); err != nil {
			return fmt.Errorf("relay pulse %d of %d: %w", i+1, n, err)
		}
		c.metrics.Pulse()
	}
	return nil
}

// Configure merges a partial settings update. It has no effect on the door
// status or on a watchdog that is already armed.
func (c *Controller) Configure(u settings.Update) (settings.Settings, error) {
	s, err := c.settings.Apply(u)
	if err != nil {
		return s, err
	}
	log.Printf("door: settings updated: transition=%v pulse=%v hub=%q", s.TransitionTime, s.PulseDuration, s.HubAddress)
	return s, nil
}

// Settings returns the settings in effect.
func (c *Controller) Settings() settings.Settings {
	return c.settings.Current()
}

// RefreshHub re-sends the current status with isNew=false. It reports false,
// and sends nothing, when no hub address is known.
func (c *Controller) RefreshHub() bool {
	if c.settings.Current().HubAddress == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify(c.status, false, logic.CauseRefresh)
	return true
}

// Command runs a named command as received from a remote surface.
func (c *Controller) Command(name string) (string, error) {
	switch name {
	case "open":
		p, err := c.RequestOpen()
		return p.Message, err
	case "close":
		p, err := c.RequestClose()
		return p.Message, err
	case "refresh":
		if !c.RefreshHub() {
			return "no hub configured", nil
		}
		return "refreshed", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// Package logic contains pure business logic for garage door state tracking.
// This package has NO external dependencies (no GPIO, MQTT, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Status is the canonical door status.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusOpening Status = "opening"
	StatusClosing Status = "closing"
	StatusStopped Status = "stopped"
	StatusUnknown Status = "unknown"
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusOpen,
	StatusClosed,
	StatusOpening,
	StatusClosing,
	StatusStopped,
	StatusUnknown,
}

// IsTerminal reports whether the status is confirmed by a dedicated sensor.
func (s Status) IsTerminal() bool {
	return s == StatusOpen || s == StatusClosed
}

// InTransit reports whether the door was last seen moving between terminals.
func (s Status) InTransit() bool {
	return s == StatusOpening || s == StatusClosing
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Sensor identifies which position sensor raised an edge.
type Sensor int

const (
	// SensorNone marks the startup probe (no sensor identified).
	SensorNone Sensor = iota
	SensorClosed
	SensorOpen
)

func (s Sensor) String() string {
	switch s {
	case SensorClosed:
		return "closed"
	case SensorOpen:
		return "open"
	default:
		return "none"
	}
}

// Snapshot is one read of both position sensors.
type Snapshot struct {
	Closed bool // true = fully-closed sensor asserted
	Open   bool // true = fully-open sensor asserted
}

// Fault reports the impossible both-asserted reading.
func (s Snapshot) Fault() bool {
	return s.Closed && s.Open
}

// Cause describes what produced a status event.
type Cause string

const (
	CauseStartup  Cause = "startup"
	CauseEdge     Cause = "edge"
	CauseWatchdog Cause = "watchdog"
	CauseRefresh  Cause = "refresh"
)

// Event is a status notification handed to sinks (LEDs excluded).
type Event struct {
	Timestamp time.Time
	Status    Status
	IsNew     bool // false for a manual refresh of an unchanged status
	Cause     Cause
	Sensors   Snapshot
}

// Action is a requested door movement.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// Plan is the actuation decided for a request.
type Plan struct {
	Action  Action
	From    Status // status the plan was decided against
	Pulses  int    // 0, 1 or 2
	Message string
}

// Package status provides a thread-safe view of the garage-door daemon for
// the web page, the JSON endpoint and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/settings"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	ActiveLow   bool
}

// Counts tallies announced status changes per status.
type Counts struct {
	Open    int
	Closed  int
	Opening int
	Closing int
	Stopped int
	Unknown int
}

// Add records one change to s.
func (c *Counts) Add(s logic.Status) {
	switch s {
	case logic.StatusOpen:
		c.Open++
	case logic.StatusClosed:
		c.Closed++
	case logic.StatusOpening:
		c.Opening++
	case logic.StatusClosing:
		c.Closing++
	case logic.StatusStopped:
		c.Stopped++
	default:
		c.Unknown++
	}
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Door          logic.Status
	Sensors       logic.Snapshot
	Ready         bool // an initial status has been announced
	LastChange    time.Time
	LastCause     logic.Cause
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
	Settings      settings.Settings
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Since returns how long the door has been in its current status.
func (s Snapshot) Since() time.Duration {
	if s.LastChange.IsZero() {
		return 0
	}
	return s.Now.Sub(s.LastChange)
}

// Tracker holds mutable daemon state behind an RWMutex. It is a door.Notifier.
type Tracker struct {
	store *settings.Store // nil = settings not shown

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config, store *settings.Store) *Tracker {
	return &Tracker{
		store: store,
		snap: Snapshot{
			Door:      logic.StatusUnknown,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Notify records a door event. Refreshes only update the sensor view.
func (t *Tracker) Notify(e logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Sensors = e.Sensors
	if !e.IsNew {
		return
	}
	t.snap.Door = e.Status
	t.snap.Ready = true
	t.snap.LastChange = e.Timestamp
	t.snap.LastCause = e.Cause
	t.snap.Counts.Add(e.Status)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if t.store != nil {
		s.Settings = t.store.Current()
	}
	s.Now = time.Now()
	return s
}

package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Door          string       `json:"door"`
	Sensors       SensorsJSON  `json:"sensors"`
	Ready         bool         `json:"ready"`
	LastChange    string       `json:"last_change,omitempty"`
	LastCause     string       `json:"last_cause,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"status_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Settings      SettingsJSON `json:"settings"`
	Config        ConfigJSON   `json:"config"`
}

// SensorsJSON is the raw sensor view.
type SensorsJSON struct {
	Closed bool `json:"closed"`
	Open   bool `json:"open"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of status counts.
type CountsJSON struct {
	Open    int `json:"open"`
	Closed  int `json:"closed"`
	Opening int `json:"opening"`
	Closing int `json:"closing"`
	Stopped int `json:"stopped"`
	Unknown int `json:"unknown"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// SettingsJSON uses the same units as the settings file and /configure.
type SettingsJSON struct {
	TransitionTime  float64 `json:"transitionTime"`
	ActuateDuration int64   `json:"actuateDuration"`
	HubAddress      *string `json:"hubAddress"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	ActiveLow   bool   `json:"active_low"`
}

func buildInner(snap Snapshot) StatusInner {
	door := string(snap.Door)
	if door == "" {
		door = "unknown"
	}

	inner := StatusInner{
		Door:          door,
		Sensors:       SensorsJSON{Closed: snap.Sensors.Closed, Open: snap.Sensors.Open},
		Ready:         snap.Ready,
		LastCause:     string(snap.LastCause),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Open:    snap.Counts.Open,
			Closed:  snap.Counts.Closed,
			Opening: snap.Counts.Opening,
			Closing: snap.Counts.Closing,
			Stopped: snap.Counts.Stopped,
			Unknown: snap.Counts.Unknown,
		},
		Settings: SettingsJSON{
			TransitionTime:  snap.Settings.TransitionTime.Seconds(),
			ActuateDuration: snap.Settings.PulseDuration.Milliseconds(),
		},
		Config: ConfigJSON{
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			ActiveLow:   snap.Config.ActiveLow,
		},
	}
	if !snap.LastChange.IsZero() {
		inner.LastChange = snap.LastChange.UTC().Format(time.RFC3339)
	}
	if hub := snap.Settings.HubAddress; hub != "" {
		inner.Settings.HubAddress = &hub
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

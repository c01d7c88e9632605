// Package mqtt publishes door events to an MQTT broker and accepts remote
// commands, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// Topics used by the controller.
const (
	// TopicEvents carries one message per door status event.
	TopicEvents = "home/garage/door/events"

	// TopicSystem carries lifecycle events (startup, shutdown, heartbeat, LWT).
	TopicSystem = "home/garage/door/system"

	// TopicCommand is subscribed to for remote open/close/refresh.
	TopicCommand = "home/garage/door/command"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a door event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandHandler receives a normalized command name from TopicCommand.
// It runs on paho's message goroutine, in arrival order, and must not block.
type CommandHandler func(name string)

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it as is
	Retained   bool
}

// Payload is the message body on TopicEvents.
type Payload struct {
	Door DoorPayload `json:"door"`
}

// DoorPayload contains the door event details.
type DoorPayload struct {
	Timestamp string       `json:"timestamp"`
	Status    string       `json:"status"`
	IsNew     bool         `json:"is_new"`
	Cause     string       `json:"cause"`
	Sensors   SensorsState `json:"sensors"`
}

// SensorsState is the raw sensor snapshot behind an event.
type SensorsState struct {
	Closed bool `json:"closed"`
	Open   bool `json:"open"`
}

// FormatPayload creates the JSON payload for a door event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Door: DoorPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Status:    string(event.Status),
			IsNew:     event.IsNew,
			Cause:     string(event.Cause),
			Sensors:   SensorsState{Closed: event.Sensors.Closed, Open: event.Sensors.Open},
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// ParseCommand extracts a command name from a TopicCommand message.
// Both a bare word ("open") and {"command":"open"} are accepted.
func ParseCommand(payload []byte) (string, bool) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var msg struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return "", false
		}
		text = strings.TrimSpace(msg.Command)
	}
	if text == "" {
		return "", false
	}
	return strings.ToLower(text), true
}

package media

import "time"

// MQTT message types exchanged between Gray Logic Core and the media
// bridge.

// CommandMessage is sent from Core to the bridge to execute a command.
// Topic: graylogic/command/ecp/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is optional; the topic carries the device identity.
	DeviceID string `json:"device_id,omitempty"`

	// Command is the command name (see ParseCommand).
	Command string `json:"command"`

	// Parameters holds command-specific values, e.g. {"key": "Home"}.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "scene", ...).
	Source string `json:"source,omitempty"`
}

// AckStatus is the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted means the device accepted the command.
	AckAccepted AckStatus = "accepted"

	// AckRejected means the command was refused without contacting the
	// device (offline, unsupported or invalid).
	AckRejected AckStatus = "rejected"

	// AckFailed means the device could not be reached or refused it.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from the bridge to Core after handling a command.
// Topic: graylogic/ack/ecp/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError describes why a command was not accepted.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceNotFound     = "DEVICE_NOT_FOUND"
	ErrCodeDeviceOffline      = "DEVICE_OFFLINE"
	ErrCodeInvalidCommand     = "INVALID_COMMAND"
	ErrCodeUnsupportedCommand = "UNSUPPORTED_COMMAND"
	ErrCodeUnknownPreset      = "UNKNOWN_PRESET"
	ErrCodeDeviceUnreachable  = "DEVICE_UNREACHABLE"
)

// StateMessage carries one capability event.
// Topic: graylogic/state/ecp/{device_id}/{event}
// QoS: 1, Retained: yes (except key_pressed)
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	Event     EventName `json:"event"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
}

// DiscoveryMessage announces a newly registered device.
// Topic: graylogic/discovery/ecp
type DiscoveryMessage struct {
	DeviceID  string    `json:"device_id"`
	Class     Class     `json:"class"`
	Name      string    `json:"name,omitempty"`
	Model     string    `json:"model,omitempty"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/ecp
// QoS: 1, Retained: yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Devices       Stats        `json:"devices"`
	Reason        string       `json:"reason,omitempty"`
}

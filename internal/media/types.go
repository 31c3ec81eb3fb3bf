package media

import (
	"time"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
)

// Logger defines the logging interface used throughout the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Class is the capability class of a device, fixed at registration.
type Class string

const (
	// ClassFullControl devices (TVs) can be powered off over the network.
	ClassFullControl Class = "full_control"

	// ClassLimitedControl devices (sticks, boxes) cannot.
	ClassLimitedControl Class = "limited_control"
)

// ClassFromIsTV maps the device-info is-tv indicator to a class.
func ClassFromIsTV(isTV string) (Class, error) {
	switch isTV {
	case "true":
		return ClassFullControl, nil
	case "false":
		return ClassLimitedControl, nil
	default:
		return "", ErrAmbiguousDevice
	}
}

// Valid reports whether c is a known class.
func (c Class) Valid() bool {
	return c == ClassFullControl || c == ClassLimitedControl
}

// LongOfflineTolerant reports whether devices of this class are routinely
// unreachable for long stretches. TVs drop off the network in standby.
func (c Class) LongOfflineTolerant() bool {
	return c == ClassFullControl
}

// Sub-status values shared by events and records.
const (
	// Unknown is emitted when a best-effort query failed.
	Unknown = "unknown"

	// unobserved marks a sub-status that has never been read. It never
	// leaves the package and differs from every real value.
	unobserved = "\x00unobserved"
)

// Power values.
const (
	PowerOn  = "on"
	PowerOff = "off"
)

// Availability values.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// Preset is one launchable app.
type Preset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is a snapshot of one device's session state. Values returned by
// the Registry are copies; mutating them has no effect.
type Record struct {
	ID       string
	Location ecp.Location
	Class    Class
	Name     string
	Model    string

	Online bool
	// Power, Media and App hold the last observed value, Unknown, or the
	// unobserved marker (see Observed).
	Power string
	Media string
	App   string
	AppID string

	Presets      []Preset
	PresetsStale bool
	MediaPressed bool

	PollInterval  time.Duration
	Failures      int
	LastCommandAt time.Time
	LastSeenAt    time.Time
	RegisteredAt  time.Time
}

// Observed reports whether v is a value read from the device (or the
// unknown placeholder) rather than the never-read marker.
func Observed(v string) bool {
	return v != unobserved
}

// Metadata is descriptive information supplied at registration.
type Metadata struct {
	Name  string
	Model string
}

// Observation is the outcome of one successful refresh cycle.
type Observation struct {
	Power string
	// Media is the raw player state or Unknown.
	Media string
	// App is the active app name or Unknown.
	App   string
	AppID string

	Name  string
	Model string

	// Presets is applied only when PresetsRefreshed is set.
	Presets          []Preset
	PresetsRefreshed bool
}

// Changes reports which sub-statuses a RecordSuccess altered.
type Changes struct {
	WentOnline bool
	Power      bool
	Media      bool
	App        bool
	Presets    bool

	// Record is the state after the update.
	Record Record
}

func (r Record) clone() Record {
	if r.Presets != nil {
		r.Presets = append([]Preset(nil), r.Presets...)
	}
	return r
}

package media

import (
	"encoding/json"
	"time"
)

// EventName identifies a capability event.
type EventName string

// Capability events published by the engine.
const (
	EventPower          EventName = "power"
	EventMediaStatus    EventName = "media_status"
	EventPlaybackStatus EventName = "playback_status"
	EventCurrentApp     EventName = "current_app"
	EventKeyPressed     EventName = "key_pressed"
	EventAppPresets     EventName = "app_presets"
	EventAvailability   EventName = "availability"
)

// Playback status values.
const (
	PlaybackPlaying        = "playing"
	PlaybackPaused         = "paused"
	PlaybackStopped        = "stopped"
	PlaybackRewinding      = "rewinding"
	PlaybackFastForwarding = "fast_forwarding"
)

// Event is one outbound capability change. Value is a string for every
// event except app_presets, which carries []Preset.
type Event struct {
	DeviceID  string    `json:"device_id"`
	Name      EventName `json:"event"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// ValueString renders the value for text stores (history rows, points).
func (e Event) ValueString() string {
	if s, ok := e.Value.(string); ok {
		return s
	}
	b, err := json.Marshal(e.Value)
	if err != nil {
		return ""
	}
	return string(b)
}

// Emitter receives capability events. Implementations must not block for
// long; Emit is called from poll timers.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(e).
func (f EmitterFunc) Emit(e Event) { f(e) }

// FanOut delivers each event to every emitter in order.
type FanOut []Emitter

// Emit implements Emitter.
func (f FanOut) Emit(e Event) {
	for _, em := range f {
		if em != nil {
			em.Emit(e)
		}
	}
}

// PlaybackFor maps a raw player state to a playback status. Transitional
// states (buffer, open) have no playback equivalent.
func PlaybackFor(state string) (string, bool) {
	switch state {
	case "play":
		return PlaybackPlaying, true
	case "pause":
		return PlaybackPaused, true
	case "stop", "close", "none":
		return PlaybackStopped, true
	default:
		return "", false
	}
}

package media

import (
	"fmt"
	"strings"
)

// Command is one inbound device command. The set of variants is closed.
type Command interface {
	// Name is the wire name of the command.
	Name() string
	isCommand()
}

// PowerCommand turns the device on or off.
type PowerCommand struct {
	On bool
}

// KeyPressCommand presses one remote key.
type KeyPressCommand struct {
	Key string
}

// TransportAction is a playback transport operation.
type TransportAction string

// Transport actions.
const (
	ActionPlay        TransportAction = "play"
	ActionPause       TransportAction = "pause"
	ActionStop        TransportAction = "stop"
	ActionRewind      TransportAction = "rewind"
	ActionFastForward TransportAction = "fast_forward"
)

// TransportCommand drives playback.
type TransportCommand struct {
	Action TransportAction
}

// SetPlaybackStatusCommand requests a playback status; it is carried out
// as the matching transport action.
type SetPlaybackStatusCommand struct {
	Status string
}

// LaunchPresetCommand starts an app from the device's presets.
type LaunchPresetCommand struct {
	PresetID string
}

// RefreshPresetsCommand re-reads the device's app list on the next poll.
type RefreshPresetsCommand struct{}

// Name implements Command.
func (PowerCommand) Name() string             { return "power" }
func (KeyPressCommand) Name() string          { return "key_press" }
func (TransportCommand) Name() string         { return "transport" }
func (SetPlaybackStatusCommand) Name() string { return "set_playback_status" }
func (LaunchPresetCommand) Name() string      { return "launch_preset" }
func (RefreshPresetsCommand) Name() string    { return "refresh_presets" }

func (PowerCommand) isCommand()             {}
func (KeyPressCommand) isCommand()          {}
func (TransportCommand) isCommand()         {}
func (SetPlaybackStatusCommand) isCommand() {}
func (LaunchPresetCommand) isCommand()      {}
func (RefreshPresetsCommand) isCommand()    {}

// transportFor maps a playback status to the action that produces it.
func transportFor(status string) (TransportAction, bool) {
	switch status {
	case PlaybackPlaying:
		return ActionPlay, true
	case PlaybackPaused:
		return ActionPause, true
	case PlaybackStopped:
		return ActionStop, true
	case PlaybackRewinding:
		return ActionRewind, true
	case PlaybackFastForwarding:
		return ActionFastForward, true
	default:
		return "", false
	}
}

// playbackAfter is the status optimistically reported after an action.
func playbackAfter(a TransportAction) string {
	switch a {
	case ActionPlay:
		return PlaybackPlaying
	case ActionPause:
		return PlaybackPaused
	case ActionStop:
		return PlaybackStopped
	case ActionRewind:
		return PlaybackRewinding
	default:
		return PlaybackFastForwarding
	}
}

// ParseCommand builds a Command from its wire name and parameters, as
// carried by MQTT command messages and the REST API.
//
// Accepted names: power_on, power_off, power (param "on" bool),
// key_press (param "key"), play, pause, stop, rewind, fast_forward,
// set_playback_status (param "status"), launch_preset (param
// "preset_id"), refresh_presets.
func ParseCommand(name string, params map[string]any) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "power_on":
		return PowerCommand{On: true}, nil
	case "power_off":
		return PowerCommand{On: false}, nil
	case "power", "set_power":
		on, ok := params["on"].(bool)
		if !ok {
			return nil, fmt.Errorf("%w: power requires boolean parameter \"on\"", ErrInvalidCommand)
		}
		return PowerCommand{On: on}, nil
	case "key_press":
		key, err := stringParam(params, "key")
		if err != nil {
			return nil, err
		}
		return KeyPressCommand{Key: key}, nil
	case string(ActionPlay), string(ActionPause), string(ActionStop), string(ActionRewind), string(ActionFastForward):
		return TransportCommand{Action: TransportAction(strings.ToLower(strings.TrimSpace(name)))}, nil
	case "set_playback_status":
		status, err := stringParam(params, "status")
		if err != nil {
			return nil, err
		}
		if _, ok := transportFor(status); !ok {
			return nil, fmt.Errorf("%w: unknown playback status %q", ErrInvalidCommand, status)
		}
		return SetPlaybackStatusCommand{Status: status}, nil
	case "launch_preset":
		id, err := stringParam(params, "preset_id")
		if err != nil {
			return nil, err
		}
		return LaunchPresetCommand{PresetID: id}, nil
	case "refresh_presets":
		return RefreshPresetsCommand{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, name)
	}
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: missing parameter %q", ErrInvalidCommand, key)
	}
	return v, nil
}

package media

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
)

// Execute carries out a command on a device.
//
// A command for an offline device never reaches the network: the
// device's last known state for that capability is emitted again and
// ErrDeviceOffline is returned. After a command is sent the device is
// polled at the fast floor until the quiet period passes.
//
// Returns:
//   - ErrDeviceNotFound for an unknown identity
//   - ErrDeviceOffline, ErrUnsupportedCommand, ErrInvalidCommand or
//     ErrUnknownPreset when the command is rejected
//   - a wrapped transport error when the device did not accept it
func (e *Engine) Execute(ctx context.Context, id string, cmd Command) error {
	rec, ok := e.registry.Get(id)
	if !ok {
		return ErrDeviceNotFound
	}
	if cmd == nil {
		return fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	if !rec.Online {
		e.echo(rec, cmd)
		return fmt.Errorf("%w: %s", ErrDeviceOffline, id)
	}

	var err error
	switch c := cmd.(type) {
	case PowerCommand:
		err = e.power(ctx, rec, c.On)
	case KeyPressCommand:
		err = e.keyPress(ctx, rec, c.Key)
	case TransportCommand:
		err = e.transport(ctx, rec, c.Action)
	case SetPlaybackStatusCommand:
		action, ok := transportFor(c.Status)
		if !ok {
			return fmt.Errorf("%w: unknown playback status %q", ErrInvalidCommand, c.Status)
		}
		err = e.transport(ctx, rec, action)
	case LaunchPresetCommand:
		err = e.launch(ctx, rec, c.PresetID)
	case RefreshPresetsCommand:
		err = e.registry.MarkPresetsStale(id)
	default:
		return fmt.Errorf("%w: %T", ErrInvalidCommand, cmd)
	}
	if err != nil {
		return err
	}

	if err := e.registry.NoteCommand(id, e.now()); err != nil {
		return err
	}
	e.scheduler.Expedite(id)
	e.logger.Debug("command executed", "device_id", id, "command", cmd.Name())
	return nil
}

func (e *Engine) power(ctx context.Context, rec Record, on bool) error {
	if rec.Class != ClassFullControl {
		if !on {
			return fmt.Errorf("%w: power off on %s device", ErrUnsupportedCommand, rec.Class)
		}
		// Limited-control devices are on whenever they answer; Home
		// wakes them from the screensaver.
		return e.send(ctx, rec, "power", ecp.KeyHome)
	}

	key, value := ecp.KeyPowerOff, PowerOff
	if on {
		key, value = ecp.KeyPowerOn, PowerOn
	}
	if err := e.send(ctx, rec, "power", key); err != nil {
		return err
	}
	if changed, err := e.registry.SetPower(rec.ID, value); err == nil && changed {
		e.emit(rec.ID, EventPower, value)
	}
	return nil
}

func (e *Engine) keyPress(ctx context.Context, rec Record, key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidCommand)
	}
	if err := e.send(ctx, rec, "key_press", key); err != nil {
		return err
	}
	switch key {
	case ecp.KeyPlay, ecp.KeyRev, ecp.KeyFwd:
		_ = e.registry.MarkMediaPressed(rec.ID) //nolint:errcheck // removal races are harmless here
	}

	e.emit(rec.ID, EventKeyPressed, key)
	e.scheduler.ArmKeyClear(rec.ID, e.cfg.KeyClearDelay, func() {
		e.emit(rec.ID, EventKeyPressed, "")
	})
	return nil
}

func (e *Engine) transport(ctx context.Context, rec Record, action TransportAction) error {
	var key string
	switch action {
	case ActionPlay:
		// Play toggles; do not pause something already playing.
		if rec.Media != ecp.PlayerPlay {
			key = ecp.KeyPlay
		}
	case ActionPause:
		if rec.Media != ecp.PlayerPause {
			key = ecp.KeyPlay
		}
	case ActionStop:
		key = ecp.KeyBack
	case ActionRewind:
		key = ecp.KeyRev
	case ActionFastForward:
		key = ecp.KeyFwd
	default:
		return fmt.Errorf("%w: unknown transport action %q", ErrInvalidCommand, action)
	}

	if key != "" {
		if err := e.send(ctx, rec, string(action), key); err != nil {
			return err
		}
	}
	_ = e.registry.MarkMediaPressed(rec.ID) //nolint:errcheck // removal races are harmless here
	e.emit(rec.ID, EventPlaybackStatus, playbackAfter(action))
	return nil
}

func (e *Engine) launch(ctx context.Context, rec Record, presetID string) error {
	if len(rec.Presets) > 0 && !hasPreset(rec.Presets, presetID) {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, presetID)
	}
	if err := e.client.Launch(ctx, rec.Location, presetID); err != nil {
		return fmt.Errorf("launching %s on %s: %w", presetID, rec.ID, err)
	}
	return nil
}

func (e *Engine) send(ctx context.Context, rec Record, command, key string) error {
	if err := e.client.KeyPress(ctx, rec.Location, key); err != nil {
		return fmt.Errorf("sending %s to %s: %w", command, rec.ID, err)
	}
	return nil
}

// echo re-emits the last known state a rejected command would have
// changed, so clients that updated optimistically snap back.
func (e *Engine) echo(rec Record, cmd Command) {
	switch cmd.(type) {
	case PowerCommand:
		if Observed(rec.Power) {
			e.emit(rec.ID, EventPower, rec.Power)
		}
	case TransportCommand, SetPlaybackStatusCommand:
		if pb, ok := PlaybackFor(rec.Media); ok {
			e.emit(rec.ID, EventPlaybackStatus, pb)
		}
	case KeyPressCommand:
		e.emit(rec.ID, EventKeyPressed, "")
	case LaunchPresetCommand:
		if Observed(rec.App) {
			e.emit(rec.ID, EventCurrentApp, rec.App)
		}
	}
	e.logger.Info("command rejected, device offline", "device_id", rec.ID, "command", cmd.Name())
}

func (e *Engine) emit(id string, name EventName, value any) {
	e.emitter.Emit(Event{DeviceID: id, Name: name, Value: value, Timestamp: e.now()})
}

func hasPreset(presets []Preset, id string) bool {
	for _, p := range presets {
		if p.ID == id {
			return true
		}
	}
	return false
}

package media

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
)

// DeviceClient is the transport the engine needs. *ecp.Client implements it.
type DeviceClient interface {
	DeviceInfo(ctx context.Context, loc ecp.Location) (*ecp.DeviceInfo, error)
	MediaPlayer(ctx context.Context, loc ecp.Location) (*ecp.MediaPlayer, error)
	ActiveApp(ctx context.Context, loc ecp.Location) (*ecp.App, error)
	Apps(ctx context.Context, loc ecp.Location) ([]ecp.App, error)
	KeyPress(ctx context.Context, loc ecp.Location, key string) error
	Launch(ctx context.Context, loc ecp.Location, appID string) error
}

// Reconciler queries a device and turns the answers into events.
//
// device-info decides whether the cycle succeeded. media-player and
// active-app are best effort: a failure is logged and reported as Unknown
// for that sub-status only.
type Reconciler struct {
	registry *Registry
	client   DeviceClient
	emitter  Emitter
	now      func() time.Time
	logger   Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(registry *Registry, client DeviceClient, emitter Emitter, logger Logger) *Reconciler {
	if logger == nil {
		logger = noopLogger{}
	}
	if emitter == nil {
		emitter = FanOut(nil)
	}
	return &Reconciler{
		registry: registry,
		client:   client,
		emitter:  emitter,
		now:      time.Now,
		logger:   logger,
	}
}

// Refresh runs one cycle for id.
//
// Returns:
//   - nil when device-info answered (the device is online)
//   - ErrDeviceNotFound if the record is gone
//   - an error wrapping ErrCycleFailed and the transport error otherwise
func (r *Reconciler) Refresh(ctx context.Context, id string) error {
	rec, ok := r.registry.Get(id)
	if !ok {
		return ErrDeviceNotFound
	}

	info, err := r.client.DeviceInfo(ctx, rec.Location)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCycleFailed, err)
	}

	obs := Observation{
		Power: PowerOff,
		Name:  info.Name(),
		Model: info.ModelName,
	}
	if info.PowerOn() {
		obs.Power = PowerOn
	}

	if mp, err := r.client.MediaPlayer(ctx, rec.Location); err != nil {
		r.logger.Warn("media status query failed", "device_id", id, "error", err)
		obs.Media = Unknown
	} else {
		obs.Media = mp.State
		if obs.Media == "" {
			obs.Media = ecp.PlayerNone
		}
	}

	if app, err := r.client.ActiveApp(ctx, rec.Location); err != nil {
		r.logger.Warn("active app query failed", "device_id", id, "error", err)
		obs.App = Unknown
	} else {
		obs.App = app.Name
		obs.AppID = app.ID
		if obs.App == "" {
			obs.App = "Home"
		}
	}

	if rec.PresetsStale {
		if apps, err := r.client.Apps(ctx, rec.Location); err != nil {
			r.logger.Warn("app preset query failed", "device_id", id, "error", err)
		} else {
			obs.Presets = presetsFrom(apps)
			obs.PresetsRefreshed = true
		}
	}

	changes, err := r.registry.RecordSuccess(id, obs)
	if err != nil {
		return err
	}
	r.emitChanges(changes)
	return nil
}

func (r *Reconciler) emitChanges(ch Changes) {
	rec := ch.Record
	ts := r.now()
	emit := func(name EventName, value any) {
		r.emitter.Emit(Event{DeviceID: rec.ID, Name: name, Value: value, Timestamp: ts})
	}

	if ch.WentOnline {
		r.logger.Info("device online", "device_id", rec.ID, "location", rec.Location.String())
		emit(EventAvailability, AvailabilityOnline)
	}
	if ch.Power {
		emit(EventPower, rec.Power)
	}
	if ch.Media {
		emit(EventMediaStatus, rec.Media)
		if pb, ok := PlaybackFor(rec.Media); ok {
			emit(EventPlaybackStatus, pb)
		}
	}
	if ch.App {
		emit(EventCurrentApp, rec.App)
	}
	if ch.Presets {
		emit(EventAppPresets, rec.Presets)
	}
}

func presetsFrom(apps []ecp.App) []Preset {
	presets := make([]Preset, 0, len(apps))
	for _, a := range apps {
		if a.ID == "" {
			continue
		}
		presets = append(presets, Preset{ID: a.ID, Name: a.Name})
	}
	return presets
}

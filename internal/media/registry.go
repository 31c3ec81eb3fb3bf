package media

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
)

// Registry is the authoritative store of device records.
//
// Every mutation is one atomic step under the record's own lock, so work
// on different devices never contends. The map lock is held only to find
// or insert an entry.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	listenersMu sync.RWMutex
	listeners   []func(id string)

	defaultInterval time.Duration
	now             func() time.Time
}

type entry struct {
	mu      sync.Mutex
	rec     Record
	removed bool
}

// NewRegistry creates an empty registry. New records start with
// defaultInterval as their poll interval.
func NewRegistry(defaultInterval time.Duration) *Registry {
	return &Registry{
		entries:         make(map[string]*entry),
		defaultInterval: defaultInterval,
		now:             time.Now,
	}
}

// OnRemove registers fn to run before a record is removed.
func (r *Registry) OnRemove(fn func(id string)) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenersMu.Unlock()
}

// Register creates a record. Sub-statuses start unobserved, the device
// starts offline and its app presets are due for a refresh.
//
// Returns ErrAlreadyRegistered if the identity exists.
func (r *Registry) Register(id string, loc ecp.Location, class Class, meta Metadata) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return Record{}, ErrAlreadyRegistered
	}

	e := &entry{rec: Record{
		ID:           id,
		Location:     loc,
		Class:        class,
		Name:         meta.Name,
		Model:        meta.Model,
		Power:        unobserved,
		Media:        unobserved,
		App:          unobserved,
		PresetsStale: true,
		PollInterval: r.defaultInterval,
		RegisteredAt: r.now(),
	}}
	r.entries[id] = e
	return e.rec.clone(), nil
}

// Exists reports whether id is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	_, ok := r.entries[id]
	r.mu.RUnlock()
	return ok
}

// Get returns a copy of the record.
func (r *Registry) Get(id string) (Record, bool) {
	var rec Record
	err := r.with(id, func(e *entry) error {
		rec = e.rec.clone()
		return nil
	})
	return rec, err == nil
}

// List returns copies of all records ordered by identity.
func (r *Registry) List() []Record {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			records = append(records, e.rec.clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// UpdateLocation replaces the device's address.
func (r *Registry) UpdateLocation(id string, loc ecp.Location) error {
	return r.with(id, func(e *entry) error {
		e.rec.Location = loc
		return nil
	})
}

// Reattach moves a recovered device to loc and gives it a fresh start:
// the failure count resets and app presets are due for a refresh.
func (r *Registry) Reattach(id string, loc ecp.Location) error {
	return r.with(id, func(e *entry) error {
		e.rec.Location = loc
		e.rec.Failures = 0
		e.rec.PresetsStale = true
		return nil
	})
}

// RecordSuccess applies a successful cycle: the failure count resets, the
// device comes online and every sub-status that differs from the record
// is stored and reported in the returned Changes. A pending media press
// forces the media sub-status to be reported and is cleared.
func (r *Registry) RecordSuccess(id string, obs Observation) (Changes, error) {
	var ch Changes
	err := r.with(id, func(e *entry) error {
		rec := &e.rec
		rec.Failures = 0
		rec.LastSeenAt = r.now()
		if !rec.Online {
			rec.Online = true
			ch.WentOnline = true
		}

		if obs.Power != "" && obs.Power != rec.Power {
			rec.Power = obs.Power
			ch.Power = true
		}
		if obs.Media != "" && (obs.Media != rec.Media || rec.MediaPressed) {
			rec.Media = obs.Media
			ch.Media = true
		}
		rec.MediaPressed = false
		if obs.App != "" && obs.App != rec.App {
			rec.App = obs.App
			rec.AppID = obs.AppID
			ch.App = true
		}

		if obs.Name != "" {
			rec.Name = obs.Name
		}
		if obs.Model != "" {
			rec.Model = obs.Model
		}

		if obs.PresetsRefreshed {
			rec.Presets = append([]Preset(nil), obs.Presets...)
			rec.PresetsStale = false
			ch.Presets = true
		}

		ch.Record = rec.clone()
		return nil
	})
	return ch, err
}

// RecordFailure increments and returns the consecutive failure count.
func (r *Registry) RecordFailure(id string) (int, error) {
	var n int
	err := r.with(id, func(e *entry) error {
		e.rec.Failures++
		n = e.rec.Failures
		return nil
	})
	return n, err
}

// SetOnline marks the device online and reports whether that changed it.
func (r *Registry) SetOnline(id string) (bool, error) {
	return r.setOnline(id, true)
}

// SetOffline marks the device offline and reports whether that changed it.
func (r *Registry) SetOffline(id string) (bool, error) {
	return r.setOnline(id, false)
}

func (r *Registry) setOnline(id string, online bool) (bool, error) {
	var changed bool
	err := r.with(id, func(e *entry) error {
		changed = e.rec.Online != online
		e.rec.Online = online
		return nil
	})
	return changed, err
}

// SetPower stores an optimistically applied power value and reports
// whether it differs from the previous one.
func (r *Registry) SetPower(id, power string) (bool, error) {
	var changed bool
	err := r.with(id, func(e *entry) error {
		changed = e.rec.Power != power
		e.rec.Power = power
		return nil
	})
	return changed, err
}

// NoteCommand records the time of a user command.
func (r *Registry) NoteCommand(id string, at time.Time) error {
	return r.with(id, func(e *entry) error {
		e.rec.LastCommandAt = at
		return nil
	})
}

// SetPollInterval stores the interval the scheduler armed.
func (r *Registry) SetPollInterval(id string, d time.Duration) error {
	return r.with(id, func(e *entry) error {
		e.rec.PollInterval = d
		return nil
	})
}

// MarkPresetsStale schedules an app preset refresh on the next success.
func (r *Registry) MarkPresetsStale(id string) error {
	return r.with(id, func(e *entry) error {
		e.rec.PresetsStale = true
		return nil
	})
}

// MarkMediaPressed forces the next media status to be reported even if
// unchanged, so clients see the outcome of a transport command.
func (r *Registry) MarkMediaPressed(id string) error {
	return r.with(id, func(e *entry) error {
		e.rec.MediaPressed = true
		return nil
	})
}

// Remove deletes the record after notifying removal listeners, so timers
// and recovery entries are gone before the identity disappears.
func (r *Registry) Remove(id string) error {
	if !r.Exists(id) {
		return ErrDeviceNotFound
	}

	r.listenersMu.RLock()
	listeners := append([]func(string){}, r.listeners...)
	r.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(id)
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return ErrDeviceNotFound
	}

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return nil
}

// with runs fn under the record lock. Missing or removed identities yield
// ErrDeviceNotFound and fn is not called.
func (r *Registry) with(id string, fn func(e *entry) error) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return ErrDeviceNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ErrDeviceNotFound
	}
	return fn(e)
}

package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
	"github.com/nerrad567/gray-logic-media/internal/discovery"
)

const storeTimeout = 5 * time.Second

// Searcher finds devices on the network. *discovery.Agent implements it.
type Searcher interface {
	Search(ctx context.Context, req discovery.Request, onFound func(discovery.Descriptor)) error
}

// StoredDevice is the persisted part of a record.
type StoredDevice struct {
	ID        string
	Location  ecp.Location
	Class     Class
	Name      string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeviceStore persists known devices across restarts.
type DeviceStore interface {
	SaveDevice(ctx context.Context, d StoredDevice) error
	DeleteDevice(ctx context.Context, id string) error
	ListDevices(ctx context.Context) ([]StoredDevice, error)
}

// Announcer is told about newly registered devices.
type Announcer interface {
	Announce(rec Record)
}

// Config holds the engine's tuning.
type Config struct {
	Timing        Timing
	KeyClearDelay time.Duration
	Recovery      RecoveryDelays

	// Discovery is the template for every search. ResetSession is set
	// per search by the engine.
	Discovery discovery.Request

	// ScanInterval is the wait between routine discovery scans; zero
	// disables them.
	ScanInterval time.Duration
}

// Options wires an Engine to its collaborators. Store and Announcer are
// optional.
type Options struct {
	Config    Config
	Client    DeviceClient
	Searcher  Searcher
	Store     DeviceStore
	Emitter   Emitter
	Announcer Announcer
	Logger    Logger
}

// Stats summarises the engine for health reports.
type Stats struct {
	Devices int `json:"devices"`
	Online  int `json:"online"`
	Pending int `json:"pending_recovery"`
}

// Engine is the device session lifecycle engine. It registers discovered
// devices, keeps each one polled or pending recovery, and executes
// commands.
type Engine struct {
	cfg        Config
	registry   *Registry
	scheduler  *Scheduler
	reconciler *Reconciler
	recovery   *Recovery

	client    DeviceClient
	searcher  Searcher
	store     DeviceStore
	emitter   Emitter
	announcer Announcer
	logger    Logger
	now       func() time.Time

	// attachMu serialises registration, re-attachment, hand-off and
	// removal, so an identity is never enrolled in recovery or polled
	// again once Remove has run.
	attachMu sync.Mutex

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEngine builds the registry, scheduler, reconciler and recovery
// manager and wires them together.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = FanOut(nil)
	}

	e := &Engine{
		cfg:       opts.Config,
		registry:  NewRegistry(opts.Config.Timing.Default),
		client:    opts.Client,
		searcher:  opts.Searcher,
		store:     opts.Store,
		emitter:   emitter,
		announcer: opts.Announcer,
		logger:    logger,
		now:       time.Now,
	}

	e.reconciler = NewReconciler(e.registry, e.client, emitter, logger)
	e.scheduler = NewScheduler(SchedulerConfig{
		Registry:  e.registry,
		Refresher: e.reconciler,
		Emitter:   emitter,
		Timing:    opts.Config.Timing,
		OnHandOff: e.handOff,
		Logger:    logger,
	})
	e.recovery = NewRecovery(e.scopedSearch, opts.Config.Recovery, logger)

	e.registry.OnRemove(e.scheduler.Stop)
	e.registry.OnRemove(e.recovery.Purge)
	return e
}

// Start restores persisted devices, runs a cold discovery and begins
// routine scans. It returns once the restore is done; discovery runs in
// the background until Stop or ctx cancellation.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.restore(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go e.scanLoop(runCtx)
	return nil
}

// Stop halts scans, timers and recovery. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.scheduler.Close()
		e.recovery.Close()
	})
}

// Discover runs one full search, tearing down any search in flight, and
// handles every device it finds.
func (e *Engine) Discover(ctx context.Context) error {
	req := e.cfg.Discovery
	req.ResetSession = true
	err := e.searcher.Search(ctx, req, func(d discovery.Descriptor) {
		e.HandleDescriptor(d)
	})
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	return nil
}

func (e *Engine) scanLoop(ctx context.Context) {
	defer e.wg.Done()

	if err := e.Discover(ctx); err != nil && ctx.Err() == nil {
		e.logger.Warn("initial discovery failed", "error", err)
	}
	if e.cfg.ScanInterval <= 0 {
		return
	}

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req := e.cfg.Discovery
			err := e.searcher.Search(ctx, req, func(d discovery.Descriptor) {
				e.HandleDescriptor(d)
			})
			if err != nil && ctx.Err() == nil {
				e.logger.Warn("discovery scan failed", "error", err)
			}
		}
	}
}

// scopedSearch is the recovery manager's search. It never resets a
// search already in flight. Matches are handled under attachMu so a
// re-attach cannot interleave with a removal.
func (e *Engine) scopedSearch(ctx context.Context, onFound func(discovery.Descriptor)) error {
	req := e.cfg.Discovery
	req.ResetSession = false
	return e.searcher.Search(ctx, req, func(d discovery.Descriptor) {
		e.attachMu.Lock()
		defer e.attachMu.Unlock()
		onFound(d)
	})
}

// HandleDescriptor processes one discovered device:
//   - a device pending recovery is re-attached at the new location
//   - a polling device that moved gets its location updated
//   - an unknown device is classified, registered and polled
func (e *Engine) HandleDescriptor(d discovery.Descriptor) {
	e.attachMu.Lock()
	defer e.attachMu.Unlock()

	if e.registry.Exists(d.ID) {
		if e.recovery.Claim(d.ID, d) {
			return
		}
		e.relocate(d)
		return
	}

	class, err := ClassFromIsTV(d.IsTV)
	if err != nil {
		e.logger.Warn("device not registered", "device_id", d.ID, "is_tv", d.IsTV, "error", err)
		return
	}

	rec, err := e.registry.Register(d.ID, d.Location, class, Metadata{Name: d.FriendlyName, Model: d.Model})
	if errors.Is(err, ErrAlreadyRegistered) {
		panic(fmt.Sprintf("media: duplicate registration of %q after existence check", d.ID))
	}
	if err != nil {
		e.logger.Error("registering device", "device_id", d.ID, "error", err)
		return
	}

	e.logger.Info("device registered", "device_id", rec.ID, "class", string(rec.Class), "location", rec.Location.String())
	e.persist(rec)
	if e.announcer != nil {
		e.announcer.Announce(rec)
	}
	e.scheduler.Start(rec.ID, e.cfg.Timing.Default)
}

func (e *Engine) relocate(d discovery.Descriptor) {
	rec, ok := e.registry.Get(d.ID)
	if !ok || rec.Location == d.Location || d.Location.IsZero() {
		return
	}
	if err := e.registry.UpdateLocation(d.ID, d.Location); err != nil {
		return
	}
	e.logger.Info("device moved", "device_id", d.ID, "from", rec.Location.String(), "to", d.Location.String())
	rec.Location = d.Location
	e.persist(rec)
}

// handOff moves a device that went offline into recovery. A device
// removed while its last cycle was failing is not enrolled.
func (e *Engine) handOff(rec Record) {
	e.attachMu.Lock()
	defer e.attachMu.Unlock()
	if !e.registry.Exists(rec.ID) {
		e.logger.Debug("hand-off skipped, device removed", "device_id", rec.ID)
		return
	}
	e.recovery.Enroll(rec, e.reattach)
}

// reattach resumes polling at the fast floor once recovery finds a device.
// The caller holds attachMu.
func (e *Engine) reattach(rec Record, d discovery.Descriptor) {
	loc := d.Location
	if loc.IsZero() {
		loc = rec.Location
	}
	if err := e.registry.Reattach(rec.ID, loc); err != nil {
		e.logger.Debug("recovered device no longer registered", "device_id", rec.ID)
		return
	}
	rec.Location = loc
	e.persist(rec)
	e.scheduler.Start(rec.ID, e.cfg.Timing.Fast)
}

// restore registers every persisted device and starts polling it at its
// last known location.
func (e *Engine) restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	devices, err := e.store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	e.attachMu.Lock()
	defer e.attachMu.Unlock()
	for _, d := range devices {
		if !d.Class.Valid() || e.registry.Exists(d.ID) {
			continue
		}
		if _, err := e.registry.Register(d.ID, d.Location, d.Class, Metadata{Name: d.Name, Model: d.Model}); err != nil {
			continue
		}
		e.scheduler.Start(d.ID, e.cfg.Timing.Default)
	}
	e.logger.Info("devices restored", "count", len(devices))
	return nil
}

func (e *Engine) persist(rec Record) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := e.store.SaveDevice(ctx, StoredDevice{
		ID:       rec.ID,
		Location: rec.Location,
		Class:    rec.Class,
		Name:     rec.Name,
		Model:    rec.Model,
	})
	if err != nil {
		e.logger.Error("saving device", "device_id", rec.ID, "error", err)
	}
}

// RemoveDevice forgets a device: its timers and recovery entry go first,
// then the record and its persisted row.
func (e *Engine) RemoveDevice(ctx context.Context, id string) error {
	e.attachMu.Lock()
	err := e.registry.Remove(id)
	e.attachMu.Unlock()
	if err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.DeleteDevice(ctx, id); err != nil {
			return fmt.Errorf("deleting device %s: %w", id, err)
		}
	}
	e.logger.Info("device removed", "device_id", id)
	return nil
}

// Device returns a snapshot of one device.
func (e *Engine) Device(id string) (Record, error) {
	rec, ok := e.registry.Get(id)
	if !ok {
		return Record{}, ErrDeviceNotFound
	}
	return rec, nil
}

// Devices returns snapshots of all devices.
func (e *Engine) Devices() []Record {
	return e.registry.List()
}

// PendingRecovery returns the identities awaiting recovery.
func (e *Engine) PendingRecovery() []string {
	return e.recovery.Pending()
}

// SessionState returns the scheduler state of a device.
func (e *Engine) SessionState(id string) (PollState, bool) {
	return e.scheduler.State(id)
}

// Stats counts devices for health reporting.
func (e *Engine) Stats() Stats {
	records := e.registry.List()
	s := Stats{Devices: len(records), Pending: len(e.recovery.Pending())}
	for _, r := range records {
		if r.Online {
			s.Online++
		}
	}
	return s
}

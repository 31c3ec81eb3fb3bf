package media

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/discovery"
)

// ScopedSearch runs one discovery pass and reports every device found.
type ScopedSearch func(ctx context.Context, onFound func(discovery.Descriptor)) error

// RecoveryDelays are the waits between recovery searches.
type RecoveryDelays struct {
	// Initial is the wait before the first search after the pending set
	// becomes non-empty.
	Initial time.Duration
	// Short is used while only limited-control devices are pending.
	Short time.Duration
	// Long is used while any long-offline tolerant device is pending.
	Long time.Duration
}

type pendingEntry struct {
	record      Record
	onRecovered func(Record, discovery.Descriptor)
}

// Recovery keeps the set of unreachable devices and periodically searches
// for them. One timer serves the whole set; it runs while the set is
// non-empty.
type Recovery struct {
	mu      sync.Mutex
	pending map[string]pendingEntry
	timer   timer
	gen     uint64
	active  bool
	closed  bool
	rounds  int

	search ScopedSearch
	delays RecoveryDelays
	ctx    context.Context
	cancel context.CancelFunc
	after  afterFunc
	logger Logger
}

// NewRecovery creates a recovery manager.
func NewRecovery(search ScopedSearch, delays RecoveryDelays, logger Logger) *Recovery {
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Recovery{
		pending: make(map[string]pendingEntry),
		search:  search,
		delays:  delays,
		ctx:     ctx,
		cancel:  cancel,
		after:   realAfterFunc,
		logger:  logger,
	}
}

// Enroll adds a device to the pending set. onRecovered runs (outside any
// lock) when a later search finds it. Re-enrolling replaces the entry.
func (r *Recovery) Enroll(rec Record, onRecovered func(Record, discovery.Descriptor)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.pending[rec.ID] = pendingEntry{record: rec, onRecovered: onRecovered}
	r.logger.Info("device pending recovery", "device_id", rec.ID, "pending", len(r.pending))
	if !r.active {
		r.active = true
		r.armLocked(r.delays.Initial)
	}
}

// Claim removes id from the pending set and re-attaches it with d, as if a
// recovery search had found it. It reports false if id was not pending.
func (r *Recovery) Claim(id string, d discovery.Descriptor) bool {
	r.mu.Lock()
	e, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
		r.stopIfEmptyLocked()
	}
	r.mu.Unlock()

	if ok && e.onRecovered != nil {
		e.onRecovered(e.record, d)
	}
	return ok
}

// Purge drops id without re-attaching it.
func (r *Recovery) Purge(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; !ok {
		return
	}
	delete(r.pending, id)
	r.stopIfEmptyLocked()
}

// IsPending reports whether id awaits recovery.
func (r *Recovery) IsPending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// Pending returns the pending identities in order.
func (r *Recovery) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Active reports whether the recovery timer is running.
func (r *Recovery) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Rounds returns how many searches have run.
func (r *Recovery) Rounds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rounds
}

// Close stops the timer and cancels a running search.
func (r *Recovery) Close() {
	r.mu.Lock()
	r.closed = true
	r.active = false
	r.gen++
	stopTimer(r.timer)
	r.timer = nil
	r.mu.Unlock()
	r.cancel()
}

func (r *Recovery) armLocked(delay time.Duration) {
	r.gen++
	gen := r.gen
	r.timer = r.after(delay, func() { r.fire(gen) })
}

func (r *Recovery) stopIfEmptyLocked() {
	if len(r.pending) > 0 || !r.active {
		return
	}
	r.active = false
	r.gen++
	stopTimer(r.timer)
	r.timer = nil
	r.logger.Debug("recovery idle")
}

// nextDelayLocked picks the long delay if any pending device tolerates
// long offline periods.
func (r *Recovery) nextDelayLocked() time.Duration {
	for _, e := range r.pending {
		if e.record.Class.LongOfflineTolerant() {
			return r.delays.Long
		}
	}
	return r.delays.Short
}

func (r *Recovery) fire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || !r.active {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.rounds++
	r.mu.Unlock()

	err := r.search(r.ctx, func(d discovery.Descriptor) {
		if r.Claim(d.ID, d) {
			r.logger.Info("device recovered", "device_id", d.ID, "location", d.Location.String())
		}
	})
	if err != nil {
		r.logger.Warn("recovery search failed", "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || !r.active {
		return
	}
	if len(r.pending) == 0 {
		r.active = false
		return
	}
	r.armLocked(r.nextDelayLocked())
}

package media

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PollState is the scheduler state of one device session.
type PollState int

const (
	// StateIdle means no timer is armed (not yet started).
	StateIdle PollState = iota
	// StateScheduled means a poll timer is armed.
	StateScheduled
	// StateRefreshing means a refresh cycle is running.
	StateRefreshing
	// StateHandedOff means the device was given to recovery.
	StateHandedOff
)

func (s PollState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRefreshing:
		return "refreshing"
	case StateHandedOff:
		return "handed_off"
	default:
		return "unknown"
	}
}

// Refresher runs one refresh cycle for a device. A nil error means the
// authoritative query succeeded.
type Refresher interface {
	Refresh(ctx context.Context, id string) error
}

// timer is the part of *time.Timer the scheduler uses.
type timer interface {
	Stop() bool
}

// afterFunc arms a one-shot callback.
type afterFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Timing holds the scheduler's intervals.
type Timing struct {
	// Default is the relaxed interval.
	Default time.Duration
	// Fast is the floor used while the user is interacting.
	Fast time.Duration
	// Quiet is how long after a command polling stays fast.
	Quiet time.Duration
	// FailureThreshold is the consecutive failure count that hands a
	// device to recovery.
	FailureThreshold int
	// CycleTimeout bounds one refresh cycle.
	CycleTimeout time.Duration
}

type session struct {
	state    PollState
	timer    timer
	gen      uint64
	expedite bool

	keyTimer timer
	keyGen   uint64
}

// Scheduler owns one poll timer per device and drives the Refresher.
//
// Timer callbacks carry the generation they were armed with; a callback
// whose generation is no longer current (restarted, expedited or stopped)
// does nothing.
type Scheduler struct {
	mu       sync.Mutex
	sessions map[string]*session
	nextGen  uint64

	registry  *Registry
	refresher Refresher
	emitter   Emitter
	timing    Timing
	onHandOff func(Record)

	ctx    context.Context
	cancel context.CancelFunc

	after  afterFunc
	now    func() time.Time
	logger Logger
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Registry  *Registry
	Refresher Refresher
	Emitter   Emitter
	Timing    Timing
	// OnHandOff receives a device after it went offline. It runs on the
	// timer goroutine.
	OnHandOff func(Record)
	Logger    Logger
}

// NewScheduler creates a scheduler. Call Close to cancel in-flight cycles.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sessions:  make(map[string]*session),
		registry:  cfg.Registry,
		refresher: cfg.Refresher,
		emitter:   cfg.Emitter,
		timing:    cfg.Timing,
		onHandOff: cfg.OnHandOff,
		ctx:       ctx,
		cancel:    cancel,
		after:     realAfterFunc,
		now:       time.Now,
		logger:    cfg.Logger,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.emitter == nil {
		s.emitter = FanOut(nil)
	}
	if s.timing.FailureThreshold <= 0 {
		s.timing.FailureThreshold = 3
	}
	return s
}

// Start arms the device's poll timer to fire after delay, cancelling any
// live timer first. A handed-off device becomes Scheduled again.
func (s *Scheduler) Start(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	s.armLocked(id, sess, delay)
}

// Expedite polls the device at the fast floor. If a refresh is running
// the fast re-arm happens when it finishes.
func (s *Scheduler) Expedite(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	switch sess.state {
	case StateScheduled:
		s.armLocked(id, sess, s.timing.Fast)
	case StateRefreshing:
		sess.expedite = true
	}
}

// Stop cancels the device's timers and forgets the session.
func (s *Scheduler) Stop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	stopTimer(sess.timer)
	stopTimer(sess.keyTimer)
	delete(s.sessions, id)
}

// Close stops every session and cancels in-flight cycles.
func (s *Scheduler) Close() {
	s.mu.Lock()
	for id, sess := range s.sessions {
		stopTimer(sess.timer)
		stopTimer(sess.keyTimer)
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	s.cancel()
}

// State returns the device's session state.
func (s *Scheduler) State(id string) (PollState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return StateIdle, false
	}
	return sess.state, true
}

// ArmKeyClear schedules fn after delay on the device's key timer,
// replacing any pending one. It reports false if the device has no
// session.
func (s *Scheduler) ArmKeyClear(id string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	stopTimer(sess.keyTimer)
	s.nextGen++
	gen := s.nextGen
	sess.keyGen = gen
	sess.keyTimer = s.after(delay, func() {
		s.mu.Lock()
		cur, ok := s.sessions[id]
		live := ok && cur == sess && cur.keyGen == gen
		if live {
			cur.keyTimer = nil
		}
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return true
}

func (s *Scheduler) armLocked(id string, sess *session, delay time.Duration) {
	stopTimer(sess.timer)
	s.nextGen++
	gen := s.nextGen
	sess.gen = gen
	sess.state = StateScheduled
	sess.expedite = false
	sess.timer = s.after(delay, func() { s.tick(id, gen) })
}

// tick runs one cycle if gen is still the session's live generation.
func (s *Scheduler) tick(id string, gen uint64) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok || sess.gen != gen || sess.state != StateScheduled {
		s.mu.Unlock()
		return
	}
	sess.state = StateRefreshing
	sess.timer = nil
	s.mu.Unlock()

	ctx := s.ctx
	if s.timing.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.timing.CycleTimeout)
		defer cancel()
	}
	err := s.refresher.Refresh(ctx, id)

	if errors.Is(err, ErrDeviceNotFound) {
		s.Stop(id)
		return
	}
	if err == nil {
		s.afterSuccess(id, gen)
		return
	}
	s.afterFailure(id, gen, err)
}

func (s *Scheduler) afterSuccess(id string, gen uint64) {
	next := s.timing.Default
	if rec, ok := s.registry.Get(id); ok && !rec.LastCommandAt.IsZero() &&
		s.now().Sub(rec.LastCommandAt) < s.timing.Quiet {
		next = s.timing.Fast
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.gen != gen {
		return
	}
	if sess.expedite {
		next = s.timing.Fast
	}
	s.setInterval(id, next)
	s.armLocked(id, sess, next)
}

func (s *Scheduler) afterFailure(id string, gen uint64, cause error) {
	failures, err := s.registry.RecordFailure(id)
	if err != nil {
		s.Stop(id)
		return
	}

	if failures < s.timing.FailureThreshold {
		s.logger.Debug("refresh failed", "device_id", id, "failures", failures, "error", cause)
		rec, _ := s.registry.Get(id)

		s.mu.Lock()
		defer s.mu.Unlock()
		sess, ok := s.sessions[id]
		if !ok || sess.gen != gen {
			return
		}
		next := rec.PollInterval
		if sess.expedite || next < s.timing.Fast {
			next = s.timing.Fast
		}
		s.armLocked(id, sess, next)
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok || sess.gen != gen {
		s.mu.Unlock()
		return
	}
	sess.state = StateHandedOff
	stopTimer(sess.keyTimer)
	sess.keyTimer = nil
	s.mu.Unlock()

	changed, err := s.registry.SetOffline(id)
	if err != nil {
		s.Stop(id)
		return
	}
	s.logger.Warn("device offline", "device_id", id, "failures", failures, "error", cause)
	if changed {
		s.emitter.Emit(Event{DeviceID: id, Name: EventAvailability, Value: AvailabilityOffline, Timestamp: s.now()})
	}

	rec, ok := s.registry.Get(id)
	if ok && s.onHandOff != nil {
		s.onHandOff(rec)
	}
}

func (s *Scheduler) setInterval(id string, d time.Duration) {
	if err := s.registry.SetPollInterval(id, d); err != nil {
		s.logger.Debug("poll interval not stored", "device_id", id, "error", err)
	}
}

func stopTimer(t timer) {
	if t != nil {
		t.Stop()
	}
}

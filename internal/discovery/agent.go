package discovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	defaultRounds     = 3
	defaultRoundPause = 500 * time.Millisecond
	defaultRoundTrip  = 3 * time.Second
)

// Agent runs bounded multi-round searches and reports each device once per
// call. It holds no device state; callers do all stateful work in onFound.
//
// Only one search session runs at a time. A Search with ResetSession
// cancels the running session and waits for it to finish before starting;
// without it, the call queues behind the running session.
type Agent struct {
	searcher  Searcher
	describer Describer
	rounds    int
	pause     time.Duration
	logger    Logger

	// runMu serialises sessions.
	runMu sync.Mutex

	mu      sync.Mutex
	current *session
}

type session struct {
	cancel context.CancelFunc
	reset  bool
}

// Options configures an Agent.
type Options struct {
	Searcher Searcher
	// Describer is optional; without it descriptors carry no metadata.
	Describer  Describer
	Rounds     int
	RoundPause time.Duration
	Logger     Logger
}

// NewAgent creates an Agent. Zero Rounds and RoundPause select 3 rounds
// with a 500ms pause.
func NewAgent(opts Options) *Agent {
	a := &Agent{
		searcher:  opts.Searcher,
		describer: opts.Describer,
		rounds:    opts.Rounds,
		pause:     opts.RoundPause,
		logger:    opts.Logger,
	}
	if a.rounds <= 0 {
		a.rounds = defaultRounds
	}
	if a.pause <= 0 {
		a.pause = defaultRoundPause
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	return a
}

// Search runs the configured number of rounds and invokes onFound at most
// once per device identity. onFound runs on the caller's goroutine.
//
// Returns nil when all rounds ran, ErrSessionReset if a newer search
// tore this one down, or ctx's error if ctx ended first.
func (a *Agent) Search(ctx context.Context, req Request, onFound func(Descriptor)) error {
	if req.ServiceType == "" {
		return ErrNoServiceType
	}
	if req.RoundTrip <= 0 {
		req.RoundTrip = defaultRoundTrip
	}

	if req.ResetSession {
		a.resetCurrent()
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	sctx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel}
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.current == s {
			a.current = nil
		}
		a.mu.Unlock()
		cancel()
	}()

	seen := make(map[string]bool)
	for round := 0; round < a.rounds; round++ {
		if round > 0 {
			select {
			case <-sctx.Done():
			case <-time.After(a.pause):
			}
		}
		if err := a.sessionErr(ctx, s); err != nil {
			return err
		}

		responses, err := a.searcher.Search(sctx, req.ServiceType, req.RoundTrip)
		if err != nil {
			if serr := a.sessionErr(ctx, s); serr != nil {
				return serr
			}
			a.logger.Warn("discovery round failed", "round", round+1, "error", err)
			continue
		}

		for _, resp := range responses {
			d, ok := a.accept(req, resp, seen)
			if !ok {
				continue
			}
			a.enrich(sctx, &d)
			if err := a.sessionErr(ctx, s); err != nil {
				return err
			}
			onFound(d)
		}
	}

	return nil
}

// resetCurrent cancels the running session, if any. The caller then waits
// on runMu for its teardown to complete.
func (a *Agent) resetCurrent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		a.current.reset = true
		a.current.cancel()
	}
}

func (a *Agent) sessionErr(parent context.Context, s *session) error {
	if err := parent.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	reset := s.reset
	a.mu.Unlock()
	if reset {
		return ErrSessionReset
	}
	return nil
}

// accept filters and deduplicates one response.
func (a *Agent) accept(req Request, resp Response, seen map[string]bool) (Descriptor, bool) {
	if !req.NonStrict && !strings.EqualFold(resp.ServiceType, req.ServiceType) {
		a.logger.Debug("ignoring response with foreign service type", "st", resp.ServiceType, "usn", resp.USN)
		return Descriptor{}, false
	}

	id := IdentityFromUSN(resp.USN)
	if id == "" {
		a.logger.Debug("ignoring response without usable USN", "location", resp.Location)
		return Descriptor{}, false
	}
	if seen[id] {
		return Descriptor{}, false
	}

	loc, ok := ParseLocation(resp.Location)
	if !ok {
		a.logger.Warn("ignoring response with bad location", "device_id", id, "location", resp.Location)
		return Descriptor{}, false
	}

	seen[id] = true
	return Descriptor{
		ID:          id,
		Location:    loc,
		ServiceType: resp.ServiceType,
		Server:      resp.Server,
	}, true
}

func (a *Agent) enrich(ctx context.Context, d *Descriptor) {
	if a.describer == nil {
		return
	}
	info, err := a.describer.Describe(ctx, d.Location)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Warn("device-info fetch failed", "device_id", d.ID, "location", d.Location.String(), "error", err)
		}
		return
	}
	d.Model = info.ModelName
	d.FriendlyName = info.Name()
	d.IsTV = strings.ToLower(strings.TrimSpace(info.IsTV))
}

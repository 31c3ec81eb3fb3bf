package media

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
	"github.com/nerrad567/gray-logic-media/internal/discovery"
)

// fakeClock drives scheduler and recovery timers by hand. Firing a timer
// runs its callback synchronously on the test goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	live := !t.stopped && !t.fired
	t.stopped = true
	return live
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// live returns armed timers in creation order.
func (c *fakeClock) live() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire advances the clock by the timer's delay and runs it.
func (c *fakeClock) fire(t *fakeTimer) {
	c.mu.Lock()
	if t.stopped || t.fired {
		c.mu.Unlock()
		return
	}
	t.fired = true
	c.now = c.now.Add(t.delay)
	c.mu.Unlock()
	t.fn()
}

// fireStale runs a timer's callback even though it was stopped, as a
// real timer racing with Stop would.
func (c *fakeClock) fireStale(t *fakeTimer) {
	c.mu.Lock()
	t.fired = true
	c.mu.Unlock()
	t.fn()
}

// onlyTimer fails unless exactly one timer is armed and returns it.
func (c *fakeClock) onlyTimer(t *testing.T) *fakeTimer {
	t.Helper()
	live := c.live()
	if len(live) != 1 {
		t.Fatalf("armed timers = %d, want 1", len(live))
	}
	return live[0]
}

// fakeDevice scripts one device's answers.
type fakeDevice struct {
	info     *ecp.DeviceInfo
	infoErr  error
	media    string
	mediaErr error
	app      ecp.App
	appErr   error
	apps     []ecp.App
	appsErr  error
}

// fakeClient answers per location; unknown locations refuse connections.
type fakeClient struct {
	mu        sync.Mutex
	devices   map[ecp.Location]*fakeDevice
	keys      []string
	launches  []string
	keyErr    error
	infoCalls int
	appsCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{devices: make(map[ecp.Location]*fakeDevice)}
}

func (f *fakeClient) set(loc ecp.Location, d *fakeDevice) {
	f.mu.Lock()
	f.devices[loc] = d
	f.mu.Unlock()
}

func (f *fakeClient) device(loc ecp.Location) (*fakeDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[loc]
	if !ok {
		return nil, &ecp.TransportError{Kind: ecp.ConnectionRefused, Method: "GET", URL: "http://" + loc.String()}
	}
	return d, nil
}

func (f *fakeClient) DeviceInfo(_ context.Context, loc ecp.Location) (*ecp.DeviceInfo, error) {
	f.mu.Lock()
	f.infoCalls++
	f.mu.Unlock()
	d, err := f.device(loc)
	if err != nil {
		return nil, err
	}
	if d.infoErr != nil {
		return nil, d.infoErr
	}
	return d.info, nil
}

func (f *fakeClient) MediaPlayer(_ context.Context, loc ecp.Location) (*ecp.MediaPlayer, error) {
	d, err := f.device(loc)
	if err != nil {
		return nil, err
	}
	if d.mediaErr != nil {
		return nil, d.mediaErr
	}
	return &ecp.MediaPlayer{State: d.media}, nil
}

func (f *fakeClient) ActiveApp(_ context.Context, loc ecp.Location) (*ecp.App, error) {
	d, err := f.device(loc)
	if err != nil {
		return nil, err
	}
	if d.appErr != nil {
		return nil, d.appErr
	}
	app := d.app
	return &app, nil
}

func (f *fakeClient) Apps(_ context.Context, loc ecp.Location) ([]ecp.App, error) {
	f.mu.Lock()
	f.appsCalls++
	f.mu.Unlock()
	d, err := f.device(loc)
	if err != nil {
		return nil, err
	}
	if d.appsErr != nil {
		return nil, d.appsErr
	}
	return d.apps, nil
}

func (f *fakeClient) KeyPress(_ context.Context, loc ecp.Location, key string) error {
	if _, err := f.device(loc); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keyErr != nil {
		return f.keyErr
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeClient) Launch(_ context.Context, loc ecp.Location, appID string) error {
	if _, err := f.device(loc); err != nil {
		return err
	}
	f.mu.Lock()
	f.launches = append(f.launches, appID)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) pressed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *fakeClient) infoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls
}

func timeoutErr() error {
	return &ecp.TransportError{Kind: ecp.Timeout, Method: "GET", URL: "http://device/query/device-info"}
}

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) named(name EventName) []Event {
	var out []Event
	for _, e := range r.all() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// fakeSearcher answers every search with the current set of devices.
type fakeSearcher struct {
	mu       sync.Mutex
	found    []discovery.Descriptor
	requests []discovery.Request
}

func (f *fakeSearcher) Search(_ context.Context, req discovery.Request, onFound func(discovery.Descriptor)) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	found := append([]discovery.Descriptor(nil), f.found...)
	f.mu.Unlock()
	for _, d := range found {
		onFound(d)
	}
	return nil
}

func (f *fakeSearcher) setFound(ds ...discovery.Descriptor) {
	f.mu.Lock()
	f.found = ds
	f.mu.Unlock()
}

func (f *fakeSearcher) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// memStore is an in-memory DeviceStore.
type memStore struct {
	mu      sync.Mutex
	devices map[string]StoredDevice
}

func newMemStore() *memStore {
	return &memStore{devices: make(map[string]StoredDevice)}
}

func (m *memStore) SaveDevice(_ context.Context, d StoredDevice) error {
	m.mu.Lock()
	m.devices[d.ID] = d
	m.mu.Unlock()
	return nil
}

func (m *memStore) DeleteDevice(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.devices, id)
	m.mu.Unlock()
	return nil
}

func (m *memStore) ListDevices(_ context.Context) ([]StoredDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredDevice, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) get(id string) (StoredDevice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	return d, ok
}

var testTiming = Timing{
	Default:          10 * time.Second,
	Fast:             2 * time.Second,
	Quiet:            30 * time.Second,
	FailureThreshold: 3,
}

var testDelays = RecoveryDelays{
	Initial: 15 * time.Second,
	Short:   30 * time.Second,
	Long:    120 * time.Second,
}

func loc(host string) ecp.Location {
	return ecp.Location{Host: host, Port: ecp.DefaultPort}
}

func tvInfo(powerMode string) *ecp.DeviceInfo {
	return &ecp.DeviceInfo{IsTV: "true", PowerMode: powerMode, ModelName: "55R635", UserDeviceName: "Lounge TV"}
}

func stickInfo() *ecp.DeviceInfo {
	return &ecp.DeviceInfo{IsTV: "false", ModelName: "3820X", FriendlyName: "Bedroom Stick"}
}

func descriptor(id, host, isTV string) discovery.Descriptor {
	return discovery.Descriptor{ID: id, Location: loc(host), ServiceType: "roku:ecp", IsTV: isTV}
}

type testEngine struct {
	*Engine
	clock    *fakeClock
	client   *fakeClient
	searcher *fakeSearcher
	events   *eventRecorder
	store    *memStore
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	te := &testEngine{
		clock:    newFakeClock(),
		client:   newFakeClient(),
		searcher: &fakeSearcher{},
		events:   &eventRecorder{},
		store:    newMemStore(),
	}
	te.Engine = NewEngine(Options{
		Config: Config{
			Timing:        testTiming,
			KeyClearDelay: 3 * time.Second,
			Recovery:      testDelays,
			Discovery:     discovery.Request{ServiceType: "roku:ecp", RoundTrip: time.Second},
		},
		Client:   te.client,
		Searcher: te.searcher,
		Store:    te.store,
		Emitter:  te.events,
	})
	te.useClock(te.clock)
	t.Cleanup(te.Stop)
	return te
}

func (te *testEngine) useClock(c *fakeClock) {
	te.now = c.Now
	te.registry.now = c.Now
	te.reconciler.now = c.Now
	te.scheduler.now = c.Now
	te.scheduler.after = c.AfterFunc
	te.recovery.after = c.AfterFunc
}

// pollTimer returns the armed poll timer (delays other than the key-clear
// delay and recovery delays are poll timers in these tests).
func (te *testEngine) pollTimer(t *testing.T) *fakeTimer {
	t.Helper()
	for _, tm := range te.clock.live() {
		if tm.delay == testTiming.Default || tm.delay == testTiming.Fast {
			return tm
		}
	}
	t.Fatal("no poll timer armed")
	return nil
}

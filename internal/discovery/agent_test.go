package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
)

const testST = "roku:ecp"

// fakeSearcher replays scripted rounds; rounds beyond the script return
// the last entry.
type fakeSearcher struct {
	mu     sync.Mutex
	rounds [][]Response
	calls  int
	block  func(call int) bool
	err    error
}

func (f *fakeSearcher) Search(ctx context.Context, st string, _ time.Duration) ([]Response, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	if f.block != nil && f.block(call) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rounds) == 0 {
		return nil, nil
	}
	if call >= len(f.rounds) {
		return f.rounds[len(f.rounds)-1], nil
	}
	return f.rounds[call], nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDescriber struct {
	infos map[string]*ecp.DeviceInfo
}

func (f fakeDescriber) Describe(_ context.Context, loc ecp.Location) (*ecp.DeviceInfo, error) {
	if info, ok := f.infos[loc.Host]; ok {
		return info, nil
	}
	return nil, errors.New("unreachable")
}

func roku(serial, host string) Response {
	return Response{
		ServiceType: testST,
		USN:         "uuid:roku:ecp:" + serial,
		Location:    "http://" + host + ":8060/",
		Server:      "Roku/12.0.0 UPnP/1.0 Roku/12.0.0",
	}
}

func collect(t *testing.T, a *Agent, req Request) []Descriptor {
	t.Helper()
	var found []Descriptor
	if err := a.Search(context.Background(), req, func(d Descriptor) { found = append(found, d) }); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	return found
}

func TestSearch_DeduplicatesAcrossRounds(t *testing.T) {
	searcher := &fakeSearcher{rounds: [][]Response{
		{roku("A1", "10.0.0.1")},
		{roku("A1", "10.0.0.1"), roku("B2", "10.0.0.2")},
		{roku("B2", "10.0.0.2"), roku("A1", "10.0.0.1")},
	}}
	a := NewAgent(Options{Searcher: searcher, RoundPause: time.Millisecond})

	found := collect(t, a, Request{ServiceType: testST, RoundTrip: time.Second})

	if searcher.callCount() != 3 {
		t.Errorf("rounds run = %d, want 3", searcher.callCount())
	}
	if len(found) != 2 {
		t.Fatalf("found %d descriptors, want 2: %+v", len(found), found)
	}
	if found[0].ID != "A1" || found[1].ID != "B2" {
		t.Errorf("found IDs = %s, %s", found[0].ID, found[1].ID)
	}
	if found[1].Location != (ecp.Location{Host: "10.0.0.2", Port: 8060}) {
		t.Errorf("location = %+v", found[1].Location)
	}
}

func TestSearch_StrictServiceType(t *testing.T) {
	other := roku("C3", "10.0.0.3")
	other.ServiceType = "upnp:rootdevice"
	searcher := &fakeSearcher{rounds: [][]Response{{roku("A1", "10.0.0.1"), other}}}

	strict := collect(t, NewAgent(Options{Searcher: searcher, Rounds: 1}),
		Request{ServiceType: testST})
	if len(strict) != 1 || strict[0].ID != "A1" {
		t.Errorf("strict search found %+v, want only A1", strict)
	}

	loose := collect(t, NewAgent(Options{Searcher: searcher, Rounds: 1}),
		Request{ServiceType: testST, NonStrict: true})
	if len(loose) != 2 {
		t.Errorf("non-strict search found %d, want 2", len(loose))
	}
}

func TestSearch_SkipsUnidentifiable(t *testing.T) {
	noUSN := roku("", "10.0.0.4")
	noUSN.USN = ""
	badLoc := roku("D4", "")
	badLoc.Location = "::not a url"
	searcher := &fakeSearcher{rounds: [][]Response{{noUSN, badLoc}}}

	found := collect(t, NewAgent(Options{Searcher: searcher, Rounds: 1}), Request{ServiceType: testST})
	if len(found) != 0 {
		t.Errorf("found %+v, want none", found)
	}
}

func TestSearch_EnrichesMetadata(t *testing.T) {
	searcher := &fakeSearcher{rounds: [][]Response{{roku("TV1", "10.0.0.5"), roku("S1", "10.0.0.6")}}}
	describer := fakeDescriber{infos: map[string]*ecp.DeviceInfo{
		"10.0.0.5": {ModelName: "TCL 55S425", FriendlyName: "Bedroom TV", IsTV: "True"},
	}}
	a := NewAgent(Options{Searcher: searcher, Describer: describer, Rounds: 1})

	found := collect(t, a, Request{ServiceType: testST})
	if len(found) != 2 {
		t.Fatalf("found %d, want 2", len(found))
	}

	tv := found[0]
	if tv.Model != "TCL 55S425" || tv.FriendlyName != "Bedroom TV" || tv.IsTV != "true" {
		t.Errorf("enriched descriptor = %+v", tv)
	}
	if found[1].IsTV != "" || found[1].Model != "" {
		t.Errorf("describe failure should leave metadata empty, got %+v", found[1])
	}
}

func TestSearch_RoundErrorsAreAbsorbed(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("no multicast route")}
	a := NewAgent(Options{Searcher: searcher, RoundPause: time.Millisecond})

	found := collect(t, a, Request{ServiceType: testST})
	if len(found) != 0 || searcher.callCount() != 3 {
		t.Errorf("found=%d rounds=%d, want 0 and 3", len(found), searcher.callCount())
	}
}

func TestSearch_RequiresServiceType(t *testing.T) {
	a := NewAgent(Options{Searcher: &fakeSearcher{}})
	if err := a.Search(context.Background(), Request{}, func(Descriptor) {}); !errors.Is(err, ErrNoServiceType) {
		t.Errorf("Search() error = %v, want ErrNoServiceType", err)
	}
}

func TestSearch_ResetSessionTearsDownPrevious(t *testing.T) {
	searcher := &fakeSearcher{
		rounds: [][]Response{{roku("A1", "10.0.0.1")}},
		block:  func(call int) bool { return call == 0 },
	}
	a := NewAgent(Options{Searcher: searcher, Rounds: 1})

	firstErr := make(chan error, 1)
	var firstFound atomic.Int32
	go func() {
		firstErr <- a.Search(context.Background(), Request{ServiceType: testST},
			func(Descriptor) { firstFound.Add(1) })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for searcher.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first search never started")
		}
		time.Sleep(time.Millisecond)
	}

	found := collect(t, a, Request{ServiceType: testST, ResetSession: true})

	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrSessionReset) {
			t.Errorf("first Search() error = %v, want ErrSessionReset", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first search was not torn down")
	}

	if firstFound.Load() != 0 {
		t.Error("torn-down session reported descriptors")
	}
	if len(found) != 1 || found[0].ID != "A1" {
		t.Errorf("second search found %+v, want A1", found)
	}
}

func TestSearch_ContextCancelled(t *testing.T) {
	searcher := &fakeSearcher{block: func(int) bool { return true }}
	a := NewAgent(Options{Searcher: searcher})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := a.Search(ctx, Request{ServiceType: testST}, func(Descriptor) {})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Search() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestIdentityFromUSN(t *testing.T) {
	tests := []struct {
		usn  string
		want string
	}{
		{"uuid:roku:ecp:X00400ABCDEF", "X00400ABCDEF"},
		{"uuid:29380012-2c04-1099-80c3-b0a737d1e1b1::upnp:rootdevice", "29380012-2c04-1099-80c3-b0a737d1e1b1"},
		{"  uuid:roku:ecp:Y1  ", "Y1"},
		{"", ""},
		{"uuid:", ""},
	}

	for _, tt := range tests {
		t.Run(tt.usn, func(t *testing.T) {
			if got := IdentityFromUSN(tt.usn); got != tt.want {
				t.Errorf("IdentityFromUSN(%q) = %q, want %q", tt.usn, got, tt.want)
			}
		})
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw    string
		want   ecp.Location
		wantOK bool
	}{
		{"http://192.168.1.20:8060/", ecp.Location{Host: "192.168.1.20", Port: 8060}, true},
		{"http://192.168.1.21/", ecp.Location{Host: "192.168.1.21", Port: ecp.DefaultPort}, true},
		{"http://[fe80::1]:9000/", ecp.Location{Host: "fe80::1", Port: 9000}, true},
		{"http://host:99999/", ecp.Location{}, false},
		{"not a url", ecp.Location{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLocation(tt.raw)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseLocation(%q) = %+v, %v; want %+v, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestHTTPDescriber_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ecp.PathDeviceInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`<device-info><model-name>Roku Express</model-name><is-tv>false</is-tv></device-info>`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL) //nolint:errcheck // httptest URL
	port, _ := strconv.Atoi(u.Port()) //nolint:errcheck // httptest port
	loc := ecp.Location{Host: u.Hostname(), Port: port}

	info, err := NewHTTPDescriber(time.Second).Describe(context.Background(), loc)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if info.ModelName != "Roku Express" || info.IsTV != "false" {
		t.Errorf("Describe() = %+v", info)
	}
	if calls.Load() != 2 {
		t.Errorf("requests = %d, want 2 (one retry)", calls.Load())
	}
}

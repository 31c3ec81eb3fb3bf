package media

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(10 * time.Second)
	if _, err := r.Register("D1", loc("10.0.0.5"), ClassFullControl, Metadata{Name: "Lounge TV"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return r
}

func TestRegistry_Register(t *testing.T) {
	r := newTestRegistry(t)

	rec, ok := r.Get("D1")
	if !ok {
		t.Fatal("Get(D1) not found after Register")
	}
	if rec.Online {
		t.Error("new record should start offline")
	}
	if Observed(rec.Power) || Observed(rec.Media) || Observed(rec.App) {
		t.Errorf("sub-statuses should start unobserved, got power=%q media=%q app=%q", rec.Power, rec.Media, rec.App)
	}
	if rec.Power == Unknown {
		t.Error("unobserved marker must differ from the unknown placeholder")
	}
	if !rec.PresetsStale {
		t.Error("new record should have presets due for refresh")
	}
	if rec.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", rec.PollInterval)
	}

	_, err := r.Register("D1", loc("10.0.0.6"), ClassLimitedControl, Metadata{})
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second Register() error = %v, want ErrAlreadyRegistered", err)
	}
	rec, _ = r.Get("D1")
	if rec.Location != loc("10.0.0.5") || rec.Class != ClassFullControl {
		t.Errorf("duplicate Register() modified record: %+v", rec)
	}
}

func TestRegistry_MissingIdentity(t *testing.T) {
	r := NewRegistry(10 * time.Second)

	ops := map[string]func() error{
		"UpdateLocation": func() error { return r.UpdateLocation("nope", loc("10.0.0.1")) },
		"RecordSuccess": func() error {
			_, err := r.RecordSuccess("nope", Observation{Power: PowerOn})
			return err
		},
		"RecordFailure": func() error {
			_, err := r.RecordFailure("nope")
			return err
		},
		"SetOffline":       func() error { _, err := r.SetOffline("nope"); return err },
		"NoteCommand":      func() error { return r.NoteCommand("nope", time.Now()) },
		"SetPollInterval":  func() error { return r.SetPollInterval("nope", time.Second) },
		"Reattach":         func() error { return r.Reattach("nope", loc("10.0.0.1")) },
		"MarkMediaPressed": func() error { return r.MarkMediaPressed("nope") },
		"Remove":           func() error { return r.Remove("nope") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, ErrDeviceNotFound) {
				t.Errorf("error = %v, want ErrDeviceNotFound", err)
			}
		})
	}
	if n := len(r.List()); n != 0 {
		t.Errorf("List() has %d records, mutations on a missing identity created records", n)
	}
}

func TestRegistry_RecordSuccess(t *testing.T) {
	r := newTestRegistry(t)

	if n, _ := r.RecordFailure("D1"); n != 1 {
		t.Fatalf("RecordFailure() = %d, want 1", n)
	}

	ch, err := r.RecordSuccess("D1", Observation{Power: PowerOn, Media: "play", App: "Netflix", AppID: "12"})
	if err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}
	if !ch.WentOnline || !ch.Power || !ch.Media || !ch.App {
		t.Errorf("first success changes = %+v, want online/power/media/app", ch)
	}
	if ch.Record.Failures != 0 {
		t.Errorf("Failures = %d, want reset to 0", ch.Record.Failures)
	}

	ch, _ = r.RecordSuccess("D1", Observation{Power: PowerOn, Media: "play", App: "Netflix", AppID: "12"})
	if ch.WentOnline || ch.Power || ch.Media || ch.App || ch.Presets {
		t.Errorf("identical observation changes = %+v, want none", ch)
	}

	ch, _ = r.RecordSuccess("D1", Observation{Power: PowerOff, Media: "play", App: "Netflix"})
	if !ch.Power || ch.Media || ch.App {
		t.Errorf("power-only change = %+v", ch)
	}
}

func TestRegistry_MediaPressedForcesReport(t *testing.T) {
	r := newTestRegistry(t)
	obs := Observation{Power: PowerOn, Media: "play", App: "Home"}
	r.RecordSuccess("D1", obs) //nolint:errcheck

	if err := r.MarkMediaPressed("D1"); err != nil {
		t.Fatalf("MarkMediaPressed() error = %v", err)
	}
	ch, _ := r.RecordSuccess("D1", obs)
	if !ch.Media {
		t.Error("unchanged media after a press should still be reported")
	}
	if ch.Record.MediaPressed {
		t.Error("press flag should be cleared after the report")
	}

	ch, _ = r.RecordSuccess("D1", obs)
	if ch.Media {
		t.Error("media reported again without a new press")
	}
}

func TestRegistry_UnknownPlaceholderIsDiffed(t *testing.T) {
	r := newTestRegistry(t)

	ch, _ := r.RecordSuccess("D1", Observation{Power: PowerOn, Media: Unknown, App: Unknown})
	if !ch.Media || !ch.App {
		t.Fatalf("first unknown should be reported, changes = %+v", ch)
	}
	ch, _ = r.RecordSuccess("D1", Observation{Power: PowerOn, Media: Unknown, App: Unknown})
	if ch.Media || ch.App {
		t.Errorf("repeated unknown reported again: %+v", ch)
	}
}

func TestRegistry_PresetsRefresh(t *testing.T) {
	r := newTestRegistry(t)

	ch, _ := r.RecordSuccess("D1", Observation{
		Power:            PowerOn,
		Presets:          []Preset{{ID: "12", Name: "Netflix"}},
		PresetsRefreshed: true,
	})
	if !ch.Presets {
		t.Fatal("refreshed presets not reported")
	}
	if ch.Record.PresetsStale {
		t.Error("PresetsStale should clear after a refresh")
	}

	// Mutating the snapshot must not reach the registry.
	ch.Record.Presets[0].Name = "changed"
	rec, _ := r.Get("D1")
	if rec.Presets[0].Name != "Netflix" {
		t.Error("Get() returned shared preset slice")
	}

	if err := r.MarkPresetsStale("D1"); err != nil {
		t.Fatalf("MarkPresetsStale() error = %v", err)
	}
	rec, _ = r.Get("D1")
	if !rec.PresetsStale {
		t.Error("MarkPresetsStale() had no effect")
	}
}

func TestRegistry_OnlineTransitions(t *testing.T) {
	r := newTestRegistry(t)

	changed, _ := r.SetOffline("D1")
	if changed {
		t.Error("SetOffline() on an offline record reported a change")
	}
	changed, _ = r.SetOnline("D1")
	if !changed {
		t.Error("SetOnline() should report a change")
	}
	changed, _ = r.SetOffline("D1")
	if !changed {
		t.Error("SetOffline() should report a change")
	}
}

func TestRegistry_Reattach(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 3; i++ {
		if _, err := r.RecordFailure("D1"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	if _, err := r.RecordSuccess("D1", Observation{Power: PowerOn, PresetsRefreshed: true}); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}
	if _, err := r.RecordFailure("D1"); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	if err := r.Reattach("D1", loc("10.0.0.9")); err != nil {
		t.Fatalf("Reattach() error = %v", err)
	}
	rec, _ := r.Get("D1")
	if rec.Location != loc("10.0.0.9") {
		t.Errorf("Location = %v, want 10.0.0.9", rec.Location)
	}
	if rec.Failures != 0 {
		t.Errorf("Failures = %d, want 0", rec.Failures)
	}
	if !rec.PresetsStale {
		t.Error("PresetsStale = false, want a refresh after reattach")
	}
}

func TestRegistry_RemoveNotifiesListenersFirst(t *testing.T) {
	r := newTestRegistry(t)

	var sawRecord bool
	r.OnRemove(func(id string) {
		_, sawRecord = r.Get(id)
	})

	if err := r.Remove("D1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !sawRecord {
		t.Error("listener ran after the record disappeared")
	}
	if _, ok := r.Get("D1"); ok {
		t.Error("record still present after Remove()")
	}
	if err := r.Remove("D1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Remove() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_ListOrdered(t *testing.T) {
	r := NewRegistry(time.Second)
	for _, id := range []string{"C", "A", "B"} {
		r.Register(id, loc(id), ClassLimitedControl, Metadata{}) //nolint:errcheck
	}
	got := r.List()
	if len(got) != 3 || got[0].ID != "A" || got[1].ID != "B" || got[2].ID != "C" {
		t.Errorf("List() order = %v", got)
	}
}

func TestRegistry_ConcurrentDevices(t *testing.T) {
	r := NewRegistry(time.Second)
	const devices = 20
	for i := 0; i < devices; i++ {
		r.Register(fmt.Sprintf("D%d", i), loc("10.0.0.1"), ClassLimitedControl, Metadata{}) //nolint:errcheck
	}

	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		id := fmt.Sprintf("D%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.RecordFailure(id)                                   //nolint:errcheck
				r.RecordSuccess(id, Observation{Power: PowerOn})      //nolint:errcheck
				r.NoteCommand(id, time.Now())                         //nolint:errcheck
				r.UpdateLocation(id, loc(fmt.Sprintf("10.0.1.%d", j))) //nolint:errcheck
			}
		}()
	}
	wg.Wait()

	for _, rec := range r.List() {
		if rec.Failures != 0 || !rec.Online {
			t.Errorf("%s: failures=%d online=%v, want 0/true", rec.ID, rec.Failures, rec.Online)
		}
	}
}

package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-media/migrations" // registers the embedded schema
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestSQLiteRepository_SaveListDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t).DB)

	d := StoredDevice{ID: "D1", Location: loc("10.0.0.5"), Class: ClassFullControl, Name: "Lounge TV", Model: "55R635"}
	if err := repo.SaveDevice(ctx, d); err != nil {
		t.Fatalf("SaveDevice() error = %v", err)
	}
	if err := repo.SaveDevice(ctx, StoredDevice{ID: "A1", Location: loc("10.0.0.2"), Class: ClassLimitedControl}); err != nil {
		t.Fatalf("SaveDevice() error = %v", err)
	}

	got, err := repo.GetDevice(ctx, "D1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.Location != d.Location || got.Class != d.Class || got.Name != d.Name || got.Model != d.Model {
		t.Errorf("GetDevice() = %+v, want %+v", got, d)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not stored")
	}

	// Upsert moves the device but keeps its class.
	moved := d
	moved.Location = loc("10.0.0.9")
	moved.Class = ClassLimitedControl
	if err := repo.SaveDevice(ctx, moved); err != nil {
		t.Fatalf("SaveDevice(update) error = %v", err)
	}
	got, _ = repo.GetDevice(ctx, "D1")
	if got.Location != loc("10.0.0.9") {
		t.Errorf("location after update = %v", got.Location)
	}
	if got.Class != ClassFullControl {
		t.Errorf("class after update = %s, want unchanged full_control", got.Class)
	}

	list, err := repo.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "A1" || list[1].ID != "D1" {
		t.Errorf("ListDevices() = %+v", list)
	}

	if err := repo.DeleteDevice(ctx, "D1"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if _, err := repo.GetDevice(ctx, "D1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice() after delete error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.DeleteDevice(ctx, "D1"); err != nil {
		t.Errorf("DeleteDevice() of absent device error = %v", err)
	}
}

func TestSQLiteRepository_RejectsEmptyID(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t).DB)
	if err := repo.SaveDevice(context.Background(), StoredDevice{Class: ClassFullControl}); err == nil {
		t.Error("SaveDevice() with empty id succeeded")
	}
}

func TestSQLiteHistoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteHistoryRepository(openTestDB(t).DB)

	base := time.Now().Add(-time.Minute)
	events := []Event{
		{DeviceID: "D1", Name: EventPower, Value: PowerOn, Timestamp: base},
		{DeviceID: "D1", Name: EventCurrentApp, Value: "Netflix", Timestamp: base.Add(time.Second)},
		{DeviceID: "D1", Name: EventAppPresets, Value: []Preset{{ID: "12", Name: "Netflix"}}, Timestamp: base.Add(2 * time.Second)},
		{DeviceID: "D2", Name: EventPower, Value: PowerOff, Timestamp: base},
	}
	for _, e := range events {
		if err := repo.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	got, err := repo.GetHistory(ctx, "D1", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	if got[0].Event != EventAppPresets || got[0].Value != `[{"id":"12","name":"Netflix"}]` {
		t.Errorf("newest entry = %+v", got[0])
	}
	if got[2].Event != EventPower || got[2].Value != PowerOn {
		t.Errorf("oldest entry = %+v", got[2])
	}

	limited, _ := repo.GetHistory(ctx, "D1", 1)
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d entries", len(limited))
	}

	if _, err := repo.GetHistory(ctx, "", 10); err == nil {
		t.Error("GetHistory() with empty id succeeded")
	}

	n, err := repo.PruneHistory(ctx, 30*time.Second)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if n != 4 {
		t.Errorf("pruned = %d, want 4", n)
	}
	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) succeeded")
	}
}

func TestSQLiteHistoryRepository_DeleteHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteHistoryRepository(openTestDB(t).DB)
	repo.RecordEvent(ctx, Event{DeviceID: "D1", Name: EventPower, Value: PowerOn}) //nolint:errcheck

	if err := repo.DeleteHistory(ctx, "D1"); err != nil {
		t.Fatalf("DeleteHistory() error = %v", err)
	}
	got, _ := repo.GetHistory(ctx, "D1", 10)
	if len(got) != 0 {
		t.Errorf("entries after delete = %d", len(got))
	}
}

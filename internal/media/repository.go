package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timestampLayout is fixed width so stored timestamps sort as text.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteRepository persists known devices in the media_devices table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// SaveDevice inserts the device or updates its location and metadata.
// The class never changes once stored.
func (r *SQLiteRepository) SaveDevice(ctx context.Context, d StoredDevice) error {
	if d.ID == "" {
		return fmt.Errorf("device id is required")
	}
	now := r.now().UTC().Format(timestampLayout)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media_devices (id, host, port, class, name, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			name = excluded.name,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		d.ID, d.Location.Host, d.Location.Port, string(d.Class), d.Name, d.Model, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving device: %w", err)
	}
	return nil
}

// DeleteDevice removes a device. Deleting an absent device is not an error.
func (r *SQLiteRepository) DeleteDevice(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM media_devices WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return nil
}

// GetDevice returns one stored device or ErrDeviceNotFound.
func (r *SQLiteRepository) GetDevice(ctx context.Context, id string) (StoredDevice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, host, port, class, name, model, created_at, updated_at
		FROM media_devices WHERE id = ?`, id)
	d, err := scanStoredDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredDevice{}, ErrDeviceNotFound
	}
	return d, err
}

// ListDevices returns all stored devices ordered by identity.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]StoredDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, host, port, class, name, model, created_at, updated_at
		FROM media_devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []StoredDevice
	for rows.Next() {
		d, err := scanStoredDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStoredDevice(row rowScanner) (StoredDevice, error) {
	var (
		d                    StoredDevice
		class                string
		createdAt, updatedAt string
	)
	err := row.Scan(&d.ID, &d.Location.Host, &d.Location.Port, &class, &d.Name, &d.Model, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, err
		}
		return d, fmt.Errorf("scanning device: %w", err)
	}
	d.Class = Class(class)
	d.CreatedAt, _ = parseTimestamp(createdAt) //nolint:errcheck // zero time on malformed rows
	d.UpdatedAt, _ = parseTimestamp(updatedAt) //nolint:errcheck // zero time on malformed rows
	if d.Location.Port == 0 {
		d.Location.Port = ecp.DefaultPort
	}
	return d, nil
}

// HistoryEntry is one recorded event.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Event     EventName `json:"event"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteHistoryRepository stores emitted events in media_state_history.
// It gives a local audit trail even when InfluxDB is not configured.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// RecordEvent inserts one event.
func (r *SQLiteHistoryRepository) RecordEvent(ctx context.Context, e Event) error {
	if e.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO media_state_history (device_id, event, value, created_at) VALUES (?, ?, ?, ?)",
		e.DeviceID, string(e.Name), e.ValueString(), ts.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns a device's events newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device identity
//   - limit: Maximum entries (default 50, max 200)
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, event, value, created_at
		FROM media_state_history
		WHERE device_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry     HistoryEntry
			event     string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &event, &entry.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		entry.Event = EventName(event)
		if entry.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than olderThan and returns the count.
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM media_state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// DeleteHistory removes all entries for a device.
func (r *SQLiteHistoryRepository) DeleteHistory(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM media_state_history WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("deleting state history: %w", err)
	}
	return nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return ts, nil
}

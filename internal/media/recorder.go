package media

import (
	"context"
	"time"
)

const recordTimeout = 2 * time.Second

// HistoryWriter stores events locally. *SQLiteHistoryRepository implements it.
type HistoryWriter interface {
	RecordEvent(ctx context.Context, e Event) error
}

// PointWriter writes time-series points. *influxdb.Client implements it.
type PointWriter interface {
	WriteMediaEvent(deviceID, event, value string, ts time.Time)
	WriteAvailability(deviceID string, online bool, ts time.Time)
}

// Recorder is an Emitter that keeps a history of every event in SQLite
// and, when configured, InfluxDB. The blank key-clear event is not kept
// in the local history.
type Recorder struct {
	history HistoryWriter
	points  PointWriter
	logger  Logger
}

// NewRecorder creates a recorder. Either writer may be nil.
func NewRecorder(history HistoryWriter, points PointWriter, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{history: history, points: points, logger: logger}
}

// Emit implements Emitter.
func (r *Recorder) Emit(e Event) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if r.points != nil {
		if e.Name == EventAvailability {
			r.points.WriteAvailability(e.DeviceID, e.Value == AvailabilityOnline, ts)
		} else {
			r.points.WriteMediaEvent(e.DeviceID, string(e.Name), e.ValueString(), ts)
		}
	}

	if r.history == nil || (e.Name == EventKeyPressed && e.ValueString() == "") {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.history.RecordEvent(ctx, e); err != nil {
		r.logger.Warn("recording event failed", "device_id", e.DeviceID, "event", string(e.Name), "error", err)
	}
}

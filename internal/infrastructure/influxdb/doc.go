// Package influxdb records media bridge events as time series.
//
// Every capability event the engine emits becomes a media_event point
// (tags device_id and event, field value) and every availability change a
// media_availability point. Writes are non-blocking and batched; failures
// arrive through SetOnError.
//
// InfluxDB is optional: Connect returns ErrDisabled when influxdb.enabled is
// false and a nil *Client ignores all writes.
package influxdb

// Package discovery finds media devices on the local network.
//
// An Agent runs a bounded number of SSDP search rounds (three by default,
// with a short pause between them so the network is not flooded). Every
// answer is filtered by service type, turned into a Descriptor keyed by
// the identity in its USN and, when a Describer is configured, enriched
// with the model, friendly name and is-tv indicator from device-info.
// Each identity is reported at most once per Search call.
//
// The Agent knows nothing about registered devices. The media engine's
// callbacks decide whether a descriptor is a new device, a moved one or a
// device awaiting recovery.
package discovery

// Package api implements the HTTP REST API and WebSocket server for the
// Gray Logic media bridge.
//
// This package provides:
//   - REST endpoints to list, inspect and forget media devices
//   - Device commands (power, keys, transport, presets) with ack-style errors
//   - Per-device event history from the local SQLite audit trail
//   - Manual SSDP discovery and the recovery queue
//   - A WebSocket hub that streams capability events as they are emitted
//
// # Architecture
//
//	Core / admin UI
//	      │ REST + WebSocket
//	┌─────▼──────────────┐
//	│   api.Server       │──── media.Engine (Execute, Devices, Discover)
//	│   api.Hub ◄────────┼──── media events (Hub is a media.Emitter)
//	└────────────────────┘
//
// # Security
//
// When security.jwt.secret is set every route except /health and /ws needs
// an HS256 bearer token signed with that secret (see IssueToken). WebSocket
// connections then present a single-use ticket from POST /auth/ws-ticket so
// the token never appears in a URL. With no secret the API is open.
package api

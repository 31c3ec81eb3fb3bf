// Package media is the device session lifecycle engine of the media bridge.
//
// It keeps every discovered media appliance either polling or waiting to be
// found again, turns what the devices report into diff-gated capability
// events and carries out commands.
//
// # Architecture
//
//	┌─────────────┐  descriptor  ┌────────────┐ register ┌────────────┐
//	│  discovery  │─────────────▶│   Engine   │─────────▶│  Registry  │
//	│   (Agent)   │◀─────┐       │ (engine.go)│          │(records,   │
//	└─────────────┘      │       └─────┬──────┘          │ per-record │
//	                     │             │ start           │ locks)     │
//	        scoped search│             ▼                 └─────▲──────┘
//	              ┌──────┴─────┐ ┌────────────┐  refresh ┌─────┴──────┐
//	              │  Recovery  │◀│ Scheduler  │─────────▶│ Reconciler │──▶ Emitter
//	              │(pending set│ │ (timers,   │          │ (queries,  │   (MQTT,
//	              │ one timer) │ │  hand-off) │          │  diffing)  │    WS, DB)
//	              └────────────┘ └────────────┘          └────────────┘
//
// # Session lifecycle
//
// A registered device is polled at the default interval. After a user
// command it is polled at the fast floor until the quiet period passes.
// When device-info fails FailureThreshold times in a row the device goes
// offline and is handed to Recovery, which searches for it on a single
// shared timer (long waits while a TV is pending, short otherwise). A
// device found again is re-attached at its new address and polled fast.
//
// # Events
//
// power, media_status, playback_status, current_app, key_pressed,
// app_presets and availability. Each is emitted only when the value
// changes, except media_status after a transport command and key_pressed,
// which clears itself to blank after a short delay.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Timer callbacks check a
// generation counter so a callback for a stopped or re-armed session does
// nothing.
package media

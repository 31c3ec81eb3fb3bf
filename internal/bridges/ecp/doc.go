// Package ecp is the transport client for networked media-playback
// devices controlled over HTTP on port 8060.
//
// Status is read with GET requests that return XML:
//
//	/query/device-info    identity, model, is-tv and power mode
//	/query/media-player   player state (play, pause, stop, ...)
//	/query/active-app     the foreground application
//	/query/apps           installed applications
//
// Commands are fire-and-forget POSTs (/keypress/{key}, /launch/{app}).
//
// Every call carries the client's timeout and returns a *TransportError
// whose FailureKind tells callers whether the device refused, timed out,
// reset the connection, answered with an HTTP error or sent a body that
// could not be decoded. The client never retries.
package ecp

package media

import "errors"

// Domain errors for the media package.
//
//	if errors.Is(err, media.ErrDeviceOffline) {
//	    // the command was rejected without contacting the device
//	}
var (
	// ErrDeviceNotFound is returned when an identity is not registered.
	ErrDeviceNotFound = errors.New("media: device not found")

	// ErrAlreadyRegistered is returned by Register for a known identity.
	ErrAlreadyRegistered = errors.New("media: device already registered")

	// ErrDeviceOffline is returned when a command targets an offline device.
	ErrDeviceOffline = errors.New("media: device offline")

	// ErrUnsupportedCommand is returned when the device class cannot
	// perform the command (power off on a streaming stick).
	ErrUnsupportedCommand = errors.New("media: command not supported by device")

	// ErrInvalidCommand is returned for malformed or unknown commands.
	ErrInvalidCommand = errors.New("media: invalid command")

	// ErrUnknownPreset is returned when launching an app the device does not have.
	ErrUnknownPreset = errors.New("media: unknown app preset")

	// ErrCycleFailed marks a refresh whose authoritative query failed.
	ErrCycleFailed = errors.New("media: refresh cycle failed")

	// ErrAmbiguousDevice is returned when a discovered device cannot be
	// classified from its is-tv indicator.
	ErrAmbiguousDevice = errors.New("media: cannot classify device")
)

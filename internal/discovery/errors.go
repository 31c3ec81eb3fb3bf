package discovery

import "errors"

var (
	// ErrSessionReset is returned by Search when a later Search with
	// ResetSession tore the session down before it finished.
	ErrSessionReset = errors.New("discovery: session reset by newer search")

	// ErrNoServiceType is returned when Request.ServiceType is empty.
	ErrNoServiceType = errors.New("discovery: service type is required")
)

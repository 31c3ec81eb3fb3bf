package ecp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrTransport matches every *TransportError via errors.Is.
var ErrTransport = errors.New("ecp: transport failure")

// FailureKind classifies why a device request failed.
type FailureKind int

const (
	// ConnectionRefused covers refused and unroutable dials.
	ConnectionRefused FailureKind = iota + 1
	// Timeout means the per-request deadline expired.
	Timeout
	// ConnectionReset means the connection broke after it was established.
	ConnectionReset
	// HTTPError means the device answered with a non-2xx status.
	HTTPError
	// Unparseable means the body could not be decoded.
	Unparseable
)

// String returns the kind's log-friendly name.
func (k FailureKind) String() string {
	switch k {
	case ConnectionRefused:
		return "connection_refused"
	case Timeout:
		return "timeout"
	case ConnectionReset:
		return "connection_reset"
	case HTTPError:
		return "http_error"
	case Unparseable:
		return "unparseable"
	default:
		return "unknown"
	}
}

// TransportError is returned by every Client call that fails.
type TransportError struct {
	Kind FailureKind
	// StatusCode is set when Kind is HTTPError.
	StatusCode int
	Method     string
	URL        string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Kind == HTTPError {
		return fmt.Sprintf("ecp: %s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("ecp: %s %s: %s: %v", e.Method, e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("ecp: %s %s: %s", e.Method, e.URL, e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match any transport failure.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// KindOf returns the FailureKind of err, or 0 when err is not a transport failure.
func KindOf(err error) FailureKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

// classify maps a net/http client error onto a FailureKind.
func classify(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return ConnectionRefused
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return ConnectionReset
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ConnectionRefused
	}
	return ConnectionReset
}

package discovery

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
)

// Logger is the logging interface used by the Agent.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Response is one raw search answer.
type Response struct {
	ServiceType string
	USN         string
	Location    string
	Server      string
}

// Descriptor describes a device found by a search.
type Descriptor struct {
	// ID is the stable identity derived from the device's USN.
	ID          string
	Location    ecp.Location
	ServiceType string
	Server      string

	// Vendor metadata; empty when the device-info fetch failed.
	Model        string
	FriendlyName string
	// IsTV is the raw is-tv indicator ("true", "false" or "").
	IsTV string
}

// Request parameterises one Agent.Search call.
type Request struct {
	ServiceType string
	// RoundTrip bounds how long each round waits for answers.
	RoundTrip time.Duration
	// NonStrict accepts answers whose ST differs from ServiceType.
	NonStrict bool
	// ResetSession tears down any in-flight search first.
	ResetSession bool
}

// IdentityFromUSN derives the stable device identity from a USN such as
// "uuid:roku:ecp:X00400ABCDEF" (giving "X00400ABCDEF") or
// "uuid:2938-...::upnp:rootdevice" (giving "2938-...").
func IdentityFromUSN(usn string) string {
	s := strings.TrimSpace(usn)
	s = strings.TrimPrefix(s, "uuid:")
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// ParseLocation extracts host and port from a LOCATION header such as
// "http://192.168.1.20:8060/". The control port is assumed when absent.
func ParseLocation(raw string) (ecp.Location, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ecp.Location{}, false
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return ecp.Location{Host: u.Host, Port: ecp.DefaultPort}, true
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return ecp.Location{}, false
	}
	return ecp.Location{Host: host, Port: port}, true
}

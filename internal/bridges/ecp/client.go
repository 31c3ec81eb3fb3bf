package ecp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultPort is the control port media devices listen on.
const DefaultPort = 8060

const (
	defaultTimeout = 3 * time.Second

	// maxBodySize bounds a query response; app lists are the largest.
	maxBodySize = 1 << 20
)

// Location is a device's network address.
type Location struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String returns "host:port".
func (l Location) String() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Host == ""
}

// Client issues single requests to media devices. It never retries;
// retry policy belongs to the poll scheduler.
//
// Thread Safety:
//   - Safe for concurrent use; the underlying pooled transport is shared.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled client, e.g. in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a Client whose every request carries timeout.
// A non-positive timeout selects the 3s default.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		http:    cleanhttp.DefaultPooledClient(),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Do sends method to http://location/path and returns the response body.
//
// Parameters:
//   - ctx: Parent context; a per-request timeout is applied on top
//   - method: http.MethodGet or http.MethodPost
//   - loc: Device address
//   - path: Request path starting with "/"
//
// Returns:
//   - []byte: Response body (possibly empty for commands)
//   - error: *TransportError classifying the failure
func (c *Client) Do(ctx context.Context, method string, loc Location, path string) ([]byte, error) {
	url := fmt.Sprintf("http://%s%s", loc, path)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		return nil, &TransportError{Kind: ConnectionRefused, Method: method, URL: url, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: classify(err), Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Kind: classify(err), Method: method, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Kind: HTTPError, StatusCode: resp.StatusCode, Method: method, URL: url}
	}

	return body, nil
}

package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
)

// Describer fetches vendor metadata for a freshly discovered device.
type Describer interface {
	Describe(ctx context.Context, loc ecp.Location) (*ecp.DeviceInfo, error)
}

// HTTPDescriber reads /query/device-info with a small retry budget.
// Devices that just answered a search are sometimes slow to serve HTTP, so
// unlike the poll path this one retries.
type HTTPDescriber struct {
	client *retryablehttp.Client
}

// NewHTTPDescriber creates a describer with per-attempt timeout.
func NewHTTPDescriber(timeout time.Duration) *HTTPDescriber {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil
	return &HTTPDescriber{client: rc}
}

// Describe implements Describer.
func (d *HTTPDescriber) Describe(ctx context.Context, loc ecp.Location) (*ecp.DeviceInfo, error) {
	url := fmt.Sprintf("http://%s%s", loc, ecp.PathDeviceInfo)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building device-info request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching device-info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching device-info: HTTP %d", resp.StatusCode)
	}

	var info ecp.DeviceInfo
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding device-info: %w", err)
	}
	return &info, nil
}

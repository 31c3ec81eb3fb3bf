package ecp

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"
)

// Query paths.
const (
	PathDeviceInfo  = "/query/device-info"
	PathMediaPlayer = "/query/media-player"
	PathActiveApp   = "/query/active-app"
	PathApps        = "/query/apps"
)

// Power modes reported in device-info. Anything other than PowerOn means
// the screen is dark.
const (
	PowerModeOn         = "PowerOn"
	PowerModeDisplayOff = "DisplayOff"
	PowerModeReady      = "Ready"
	PowerModeHeadless   = "Headless"
)

// DeviceInfo is the subset of /query/device-info the bridge uses.
type DeviceInfo struct {
	UDN            string `xml:"udn"`
	SerialNumber   string `xml:"serial-number"`
	DeviceID       string `xml:"device-id"`
	VendorName     string `xml:"vendor-name"`
	ModelName      string `xml:"model-name"`
	ModelNumber    string `xml:"model-number"`
	FriendlyName   string `xml:"friendly-device-name"`
	UserDeviceName string `xml:"user-device-name"`
	IsTV           string `xml:"is-tv"`
	PowerMode      string `xml:"power-mode"`
	SoftwareVer    string `xml:"software-version"`
}

// PowerOn reports whether the device's display is on. Streaming sticks
// without a power-mode element are on whenever they answer.
func (d *DeviceInfo) PowerOn() bool {
	return d.PowerMode == "" || d.PowerMode == PowerModeOn
}

// Name returns the most specific human name the device reports.
func (d *DeviceInfo) Name() string {
	if d.UserDeviceName != "" {
		return d.UserDeviceName
	}
	if d.FriendlyName != "" {
		return d.FriendlyName
	}
	return d.ModelName
}

// MediaPlayer is /query/media-player.
type MediaPlayer struct {
	State  string `xml:"state,attr"`
	Error  string `xml:"error,attr"`
	Plugin struct {
		ID   string `xml:"id,attr"`
		Name string `xml:"name,attr"`
	} `xml:"plugin"`
}

// App is one application entry.
type App struct {
	ID      string `xml:"id,attr" json:"id"`
	Type    string `xml:"type,attr" json:"type,omitempty"`
	Version string `xml:"version,attr" json:"version,omitempty"`
	Name    string `xml:",chardata" json:"name"`
}

type activeAppResponse struct {
	App         App  `xml:"app"`
	Screensaver *App `xml:"screensaver"`
}

type appsResponse struct {
	Apps []App `xml:"app"`
}

// DeviceInfo queries /query/device-info.
func (c *Client) DeviceInfo(ctx context.Context, loc Location) (*DeviceInfo, error) {
	var info DeviceInfo
	if err := c.query(ctx, loc, PathDeviceInfo, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MediaPlayer queries /query/media-player.
func (c *Client) MediaPlayer(ctx context.Context, loc Location) (*MediaPlayer, error) {
	var mp MediaPlayer
	if err := c.query(ctx, loc, PathMediaPlayer, &mp); err != nil {
		return nil, err
	}
	return &mp, nil
}

// ActiveApp queries /query/active-app. The home screen is reported as an
// app without an ID.
func (c *Client) ActiveApp(ctx context.Context, loc Location) (*App, error) {
	var resp activeAppResponse
	if err := c.query(ctx, loc, PathActiveApp, &resp); err != nil {
		return nil, err
	}
	app := resp.App
	app.Name = strings.TrimSpace(app.Name)
	return &app, nil
}

// Apps queries /query/apps, the installed application list.
func (c *Client) Apps(ctx context.Context, loc Location) ([]App, error) {
	var resp appsResponse
	if err := c.query(ctx, loc, PathApps, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Apps {
		resp.Apps[i].Name = strings.TrimSpace(resp.Apps[i].Name)
	}
	return resp.Apps, nil
}

// KeyPress sends POST /keypress/{key}. Keys are sent as given, so any key
// the device understands (including "Lit_a" literals) can be used.
func (c *Client) KeyPress(ctx context.Context, loc Location, key string) error {
	_, err := c.Do(ctx, http.MethodPost, loc, "/keypress/"+url.PathEscape(key))
	return err
}

// Launch sends POST /launch/{appID}.
func (c *Client) Launch(ctx context.Context, loc Location, appID string) error {
	_, err := c.Do(ctx, http.MethodPost, loc, "/launch/"+url.PathEscape(appID))
	return err
}

func (c *Client) query(ctx context.Context, loc Location, path string, v any) error {
	body, err := c.Do(ctx, http.MethodGet, loc, path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &TransportError{Kind: Unparseable, Method: http.MethodGet, URL: "http://" + loc.String() + path}
	}
	if err := xml.Unmarshal(body, v); err != nil {
		return &TransportError{Kind: Unparseable, Method: http.MethodGet, URL: "http://" + loc.String() + path, Err: err}
	}
	return nil
}

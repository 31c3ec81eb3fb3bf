package ecp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"
)

const deviceInfoXML = `<?xml version="1.0" encoding="UTF-8" ?>
<device-info>
	<udn>29380012-2c04-1099-80c3-b0a737d1e1b1</udn>
	<serial-number>X00400ABCDEF</serial-number>
	<vendor-name>Roku</vendor-name>
	<model-name>Roku Ultra</model-name>
	<model-number>4800X</model-number>
	<friendly-device-name>Living Room</friendly-device-name>
	<user-device-name>Lounge</user-device-name>
	<is-tv>false</is-tv>
	<power-mode>PowerOn</power-mode>
</device-info>`

const appsXML = `<apps>
	<app id="12" type="appl" version="4.1.218">Netflix</app>
	<app id="837" type="appl" version="2.21">
		YouTube
	</app>
</apps>`

func locationOf(t *testing.T, srv *httptest.Server) Location {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	port, _ := strconv.Atoi(portStr) //nolint:errcheck // httptest port is numeric
	return Location{Host: host, Port: port}
}

func newDevice(t *testing.T, handler http.HandlerFunc) (*Client, Location) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(time.Second), locationOf(t, srv)
}

func TestDeviceInfo(t *testing.T) {
	client, loc := newDevice(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != PathDeviceInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(deviceInfoXML)) //nolint:errcheck // test server
	})

	info, err := client.DeviceInfo(context.Background(), loc)
	if err != nil {
		t.Fatalf("DeviceInfo() error = %v", err)
	}

	if info.SerialNumber != "X00400ABCDEF" {
		t.Errorf("SerialNumber = %q", info.SerialNumber)
	}
	if info.IsTV != "false" {
		t.Errorf("IsTV = %q, want false", info.IsTV)
	}
	if !info.PowerOn() {
		t.Error("PowerOn() = false for PowerOn mode")
	}
	if info.Name() != "Lounge" {
		t.Errorf("Name() = %q, want Lounge", info.Name())
	}
}

func TestDeviceInfo_PowerOn(t *testing.T) {
	tests := []struct {
		mode string
		want bool
	}{
		{PowerModeOn, true},
		{"", true},
		{PowerModeDisplayOff, false},
		{PowerModeReady, false},
		{PowerModeHeadless, false},
	}

	for _, tt := range tests {
		t.Run("mode="+tt.mode, func(t *testing.T) {
			info := DeviceInfo{PowerMode: tt.mode}
			if got := info.PowerOn(); got != tt.want {
				t.Errorf("PowerOn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMediaPlayerAndActiveApp(t *testing.T) {
	client, loc := newDevice(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathMediaPlayer:
			w.Write([]byte(`<player error="false" state="pause"><plugin id="12" name="Netflix"/></player>`)) //nolint:errcheck // test server
		case PathActiveApp:
			w.Write([]byte(`<active-app><app id="12" type="appl" version="4.1.218">Netflix</app></active-app>`)) //nolint:errcheck // test server
		}
	})
	ctx := context.Background()

	mp, err := client.MediaPlayer(ctx, loc)
	if err != nil {
		t.Fatalf("MediaPlayer() error = %v", err)
	}
	if mp.State != PlayerPause || mp.Plugin.Name != "Netflix" {
		t.Errorf("MediaPlayer() = %+v", mp)
	}

	app, err := client.ActiveApp(ctx, loc)
	if err != nil {
		t.Fatalf("ActiveApp() error = %v", err)
	}
	if app.ID != "12" || app.Name != "Netflix" {
		t.Errorf("ActiveApp() = %+v", app)
	}
}

func TestApps(t *testing.T) {
	client, loc := newDevice(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(appsXML)) //nolint:errcheck // test server
	})

	apps, err := client.Apps(context.Background(), loc)
	if err != nil {
		t.Fatalf("Apps() error = %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("len(apps) = %d, want 2", len(apps))
	}
	if apps[1].ID != "837" || apps[1].Name != "YouTube" {
		t.Errorf("apps[1] = %+v, want trimmed YouTube", apps[1])
	}
}

func TestCommands(t *testing.T) {
	var mu sync.Mutex
	var got []string
	client, loc := newDevice(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.Method+" "+r.URL.EscapedPath())
		mu.Unlock()
	})
	ctx := context.Background()

	if err := client.KeyPress(ctx, loc, KeyHome); err != nil {
		t.Fatalf("KeyPress() error = %v", err)
	}
	if err := client.KeyPress(ctx, loc, "Lit_ "); err != nil {
		t.Fatalf("KeyPress(literal) error = %v", err)
	}
	if err := client.Launch(ctx, loc, "12"); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	want := []string{"POST /keypress/Home", "POST /keypress/Lit_%20", "POST /launch/12"}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("requests = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFailureKinds(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		client, loc := newDevice(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.DeviceInfo(context.Background(), loc)
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("error = %v, want *TransportError", err)
		}
		if te.Kind != HTTPError || te.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("kind = %v code = %d", te.Kind, te.StatusCode)
		}
		if !errors.Is(err, ErrTransport) {
			t.Error("errors.Is(err, ErrTransport) = false")
		}
	})

	t.Run("unparseable", func(t *testing.T) {
		client, loc := newDevice(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("<device-info><udn>")) //nolint:errcheck // test server
		})

		_, err := client.DeviceInfo(context.Background(), loc)
		if KindOf(err) != Unparseable {
			t.Errorf("KindOf() = %v, want Unparseable (err %v)", KindOf(err), err)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		client, loc := newDevice(t, func(http.ResponseWriter, *http.Request) {})

		_, err := client.MediaPlayer(context.Background(), loc)
		if KindOf(err) != Unparseable {
			t.Errorf("KindOf() = %v, want Unparseable", KindOf(err))
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			<-release
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })

		client := NewClient(50 * time.Millisecond)
		_, err := client.DeviceInfo(context.Background(), locationOf(t, srv))
		if KindOf(err) != Timeout {
			t.Errorf("KindOf() = %v, want Timeout (err %v)", KindOf(err), err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		loc := locationOf(t, srv)
		srv.Close()

		_, err := NewClient(time.Second).DeviceInfo(context.Background(), loc)
		if KindOf(err) != ConnectionRefused {
			t.Errorf("KindOf() = %v, want ConnectionRefused (err %v)", KindOf(err), err)
		}
	})

	t.Run("connection reset", func(t *testing.T) {
		client, loc := newDevice(t, func(w http.ResponseWriter, _ *http.Request) {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("response writer cannot hijack")
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			conn.Close()
		})

		_, err := client.DeviceInfo(context.Background(), loc)
		if KindOf(err) != ConnectionReset {
			t.Errorf("KindOf() = %v, want ConnectionReset (err %v)", KindOf(err), err)
		}
	})
}

func TestKindOf_NonTransport(t *testing.T) {
	if got := KindOf(errors.New("other")); got != 0 {
		t.Errorf("KindOf(other) = %v, want 0", got)
	}
	if got := FailureKind(0).String(); got != "unknown" {
		t.Errorf("FailureKind(0).String() = %q", got)
	}
}

func TestLocation(t *testing.T) {
	loc := Location{Host: "192.168.1.20", Port: DefaultPort}
	if loc.String() != "192.168.1.20:8060" {
		t.Errorf("String() = %q", loc.String())
	}
	if loc.IsZero() || !(Location{}).IsZero() {
		t.Error("IsZero() mismatch")
	}
}

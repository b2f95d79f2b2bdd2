package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"motionhub/internal/ctrl"
	"motionhub/internal/motion"
)

type fakeMotion struct {
	mu       sync.Mutex
	snap     motion.Snapshot
	sampling []bool
	bias     []bool
}

func (m *fakeMotion) Snapshot() motion.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *fakeMotion) SetSampling(on bool) {
	m.mu.Lock()
	m.sampling = append(m.sampling, on)
	m.mu.Unlock()
}

func (m *fakeMotion) SetGyroBiasCorrection(on bool) {
	m.mu.Lock()
	m.bias = append(m.bias, on)
	m.mu.Unlock()
}

type fakeReprober struct {
	ok  bool
	err error
}

func (f fakeReprober) Reprobe(ctx context.Context) (bool, error) { return f.ok, f.err }

type fakeLister []ctrl.Info

func (f fakeLister) Controllers() []ctrl.Info { return f }

func TestAPIMotion(t *testing.T) {
	m := &fakeMotion{snap: motion.Snapshot{Counter: 42, Sampling: true, GyroSource: "controller"}}
	ts := httptest.NewServer(Handler(Deps{Motion: m}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/motion")
	if err != nil {
		t.Fatalf("get motion: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	var snap motion.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Counter != 42 || !snap.Sampling || snap.GyroSource != "controller" {
		t.Fatalf("snap=%+v", snap)
	}

	resp2, err := http.Post(ts.URL+"/api/motion", "application/json", nil)
	if err != nil {
		t.Fatalf("post motion: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d want 405", resp2.StatusCode)
	}
}

func TestAPIToggles(t *testing.T) {
	m := &fakeMotion{}
	ts := httptest.NewServer(Handler(Deps{Motion: m}))
	defer ts.Close()

	cases := []struct {
		path string
		body string
		code int
	}{
		{"/api/motion/sampling", `{"enabled":false}`, http.StatusOK},
		{"/api/motion/bias", `{"enabled":true}`, http.StatusOK},
		{"/api/motion/bias", `{}`, http.StatusBadRequest},
		{"/api/motion/sampling", `not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := http.Post(ts.URL+tc.path, "application/json", strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("post %s: %v", tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.code {
			t.Fatalf("%s %s: status code=%d want %d", tc.path, tc.body, resp.StatusCode, tc.code)
		}
	}
	if len(m.sampling) != 1 || m.sampling[0] {
		t.Fatalf("sampling calls=%v want [false]", m.sampling)
	}
	if len(m.bias) != 1 || !m.bias[0] {
		t.Fatalf("bias calls=%v want [true]", m.bias)
	}
}

func TestAPIReprobe(t *testing.T) {
	ts := httptest.NewServer(Handler(Deps{Motion: &fakeMotion{}}))
	defer ts.Close()
	resp, err := http.Post(ts.URL+"/api/motion/reprobe", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status code=%d want 404", resp.StatusCode)
	}

	ts2 := httptest.NewServer(Handler(Deps{Motion: &fakeMotion{}, Reprobe: fakeReprober{ok: true}}))
	defer ts2.Close()
	resp, err = http.Post(ts2.URL+"/api/motion/reprobe", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		DeviceMotionSupport bool `json:"device_motion_support"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.DeviceMotionSupport {
		t.Fatalf("expected device support")
	}

	ts3 := httptest.NewServer(Handler(Deps{Motion: &fakeMotion{}, Reprobe: fakeReprober{err: errors.New("busy")}}))
	defer ts3.Close()
	resp3, err := http.Post(ts3.URL+"/api/motion/reprobe", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status code=%d want 503", resp3.StatusCode)
	}
}

func TestAPIControllers(t *testing.T) {
	list := fakeLister{{ID: "/dev/input/event7", Name: "DualSense", HasGyro: true, HasAccel: true, Timestamps: true}}
	ts := httptest.NewServer(Handler(Deps{Motion: &fakeMotion{}, Controllers: list}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/controllers")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Controllers []ctrl.Info `json:"controllers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Controllers) != 1 || out.Controllers[0].Name != "DualSense" || !out.Controllers[0].Timestamps {
		t.Fatalf("controllers=%+v", out.Controllers)
	}
}

func TestMotionStream(t *testing.T) {
	b := NewSnapshotBroadcaster()
	b.Publish(motion.Snapshot{Counter: 1})
	ts := httptest.NewServer(Handler(Deps{Motion: &fakeMotion{}, Stream: b}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/motion"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first motion.Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Counter != 1 {
		t.Fatalf("counter=%d want 1 (last value)", first.Counter)
	}

	b.Publish(motion.Snapshot{Counter: 2})
	var second motion.Snapshot
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read: %v", err)
	}
	if second.Counter != 2 {
		t.Fatalf("counter=%d want 2", second.Counter)
	}
}

func TestAPILogs(t *testing.T) {
	logs := NewLogBuffer(10)
	_, _ = logs.Write([]byte("2026/10/14 09:30:00 motion: device has builtin accelerometer and gyroscope\n"))
	_, _ = logs.Write([]byte("2026/10/14 09:30:01 ctrl: controller \"pad\" connected\n"))
	ts := httptest.NewServer(Handler(Deps{Motion: &fakeMotion{}, Logs: logs}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/logs?subsystem=ctrl")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out LogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Entries) != 1 || out.Entries[0].Subsystem != "ctrl" {
		t.Fatalf("entries=%v", out.Entries)
	}

	resp2, err := http.Get(ts.URL + "/api/logs?tail=0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want %d", resp2.StatusCode, http.StatusBadRequest)
	}
}

func TestAPIAbout(t *testing.T) {
	m := &fakeMotion{snap: motion.Snapshot{Sampling: true, DeviceMotionSupport: true}}
	ts := httptest.NewServer(Handler(Deps{
		Motion:        m,
		Controllers:   fakeLister{{ID: "a"}, {ID: "b"}},
		DeviceBackend: "iio",
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/about")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out AboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Service != "motionhub" || out.DeviceBackend != "iio" {
		t.Fatalf("about=%+v", out)
	}
	if out.Controllers != 2 || !out.Sampling || !out.DeviceMotionSupport {
		t.Fatalf("about=%+v want 2 controllers, sampling and device support", out)
	}
}

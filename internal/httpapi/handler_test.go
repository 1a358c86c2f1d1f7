package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/httprunner/depsync"
)

type fakeSource struct {
	devices []depsync.Device
	cursor  string
}

func (f fakeSource) Devices() []depsync.Device {
	out := make([]depsync.Device, len(f.devices))
	copy(out, f.devices)
	return out
}

func (f fakeSource) Device(serial string) (depsync.Device, bool) {
	for _, dev := range f.devices {
		if dev.SerialNumber == serial {
			return dev, true
		}
	}
	return depsync.Device{}, false
}

func (f fakeSource) DeviceCount() int { return len(f.devices) }

func (f fakeSource) Cursor() string { return f.cursor }

func newTestRouter(tracker *SyncTracker, metrics http.Handler) http.Handler {
	source := fakeSource{
		devices: []depsync.Device{
			{SerialNumber: "A", Model: "iMac", ProfileStatus: depsync.ProfileStatusAssigned},
			{SerialNumber: "B", Model: "iPad", ProfileStatus: depsync.ProfileStatusEmpty},
		},
		cursor: "c9",
	}
	return NewHandler(zerolog.Nop(), source, tracker, metrics).Router()
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestListDevices(t *testing.T) {
	h := newTestRouter(nil, nil)

	rr := doGet(t, h, "/api/v1/devices")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Devices []depsync.Device `json:"devices"`
		Count   int              `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || body.Devices[0].SerialNumber != "A" {
		t.Fatalf("unexpected body: %+v", body)
	}

	rr = doGet(t, h, "/api/v1/devices?profile_status=EMPTY")
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Devices[0].SerialNumber != "B" {
		t.Fatalf("unexpected filtered body: %+v", body)
	}
}

func TestGetDevice(t *testing.T) {
	h := newTestRouter(nil, nil)

	rr := doGet(t, h, "/api/v1/devices/A")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"model":"iMac"`) {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}
	rr = doGet(t, h, "/api/v1/devices/NOPE")
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "not_found") {
		t.Fatalf("expected 404, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestReadyzAndStatusFollowTracker(t *testing.T) {
	tracker := &SyncTracker{}
	h := newTestRouter(tracker, nil)

	if rr := doGet(t, h, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rr.Code)
	}
	if rr := doGet(t, h, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before sync = %d", rr.Code)
	}

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tracker.Record(now, nil)
	tracker.Record(now.Add(time.Minute), errors.New("boom"))
	if rr := doGet(t, h, "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("readyz after sync = %d", rr.Code)
	}

	rr := doGet(t, h, "/api/v1/status")
	var status Status
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Syncs != 2 || status.Failures != 1 || status.LastError != "boom" || status.Devices != 2 || status.Cursor != "c9" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if !status.LastSuccess.Equal(now) {
		t.Fatalf("last success = %v", status.LastSuccess)
	}
}

func TestMetricsRouteMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("depsync_registry_devices 2\n"))
	})
	h := newTestRouter(nil, metrics)

	rr := doGet(t, h, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "depsync_registry_devices") {
		t.Fatalf("unexpected metrics response: %d %s", rr.Code, rr.Body.String())
	}
	if rr := doGet(t, newTestRouter(nil, nil), "/metrics"); rr.Code != http.StatusNotFound {
		t.Fatalf("metrics must not be mounted without a handler, got %d", rr.Code)
	}
}

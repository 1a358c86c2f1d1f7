package depsync

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

type pageFixture struct {
	devices []map[string]any
	cursor  string
	more    bool
}

// servePages answers POST path with the fixture keyed by the request cursor
// and records the cursors it was asked for.
func servePages(t *testing.T, f *fakeService, path string, pages map[string]pageFixture) *[]any {
	t.Helper()
	var (
		mu      sync.Mutex
		cursors []any
	)
	f.handle(http.MethodPost, path, func(w http.ResponseWriter, _ *http.Request, _ int, body []byte) {
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "MALFORMED_JSON"})
			return
		}
		mu.Lock()
		cursors = append(cursors, req["cursor"])
		mu.Unlock()
		key, _ := req["cursor"].(string)
		page, ok := pages[key]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "EXPIRED_CURSOR"})
			return
		}
		devices := page.devices
		if devices == nil {
			devices = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"devices":        devices,
			"cursor":         page.cursor,
			"more_to_follow": page.more,
		})
	})
	return &cursors
}

func listed(serial, model string) map[string]any {
	return map[string]any{"serial_number": serial, "model": model, "profile_status": "empty"}
}

func changed(op, serial string, attrs map[string]any) map[string]any {
	rec := map[string]any{"serial_number": serial, "op_type": op, "op_date": "2024-06-01T00:00:00Z"}
	for k, v := range attrs {
		rec[k] = v
	}
	return rec
}

type pageCollector struct {
	mu    sync.Mutex
	pages []PageRecord
}

func (c *pageCollector) RecordPage(_ context.Context, page PageRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = append(c.pages, page)
	return nil
}

func TestFetchDevicesWalksAllPages(t *testing.T) {
	f := newFakeService(t)
	cursors := servePages(t, f, pathServerDevices, map[string]pageFixture{
		"":   {devices: []map[string]any{listed("A", "iMac"), listed("B", "iPad")}, cursor: "c1", more: true},
		"c1": {devices: []map[string]any{listed("C", "iPhone")}, cursor: "c2", more: true},
		"c2": {devices: []map[string]any{listed("D", "Mac mini")}, cursor: "c3", more: false},
	})
	recorder := &pageCollector{}
	client := newTestClient(t, f, func(cfg *Config) { cfg.Recorder = recorder })

	devices, err := client.FetchDevices(context.Background())
	if err != nil {
		t.Fatalf("FetchDevices failed: %v", err)
	}
	if len(devices) != 4 {
		t.Fatalf("expected 4 devices, got %d", len(devices))
	}
	for i, serial := range []string{"A", "B", "C", "D"} {
		if devices[i].SerialNumber != serial {
			t.Fatalf("device %d = %q, want %q", i, devices[i].SerialNumber, serial)
		}
	}
	if got := client.Cursor(); got != "c3" {
		t.Fatalf("cursor = %q, want c3", got)
	}
	want := []any{nil, "c1", "c2"}
	if len(*cursors) != len(want) {
		t.Fatalf("expected %d listing requests, got %v", len(want), *cursors)
	}
	for i := range want {
		if (*cursors)[i] != want[i] {
			t.Fatalf("request %d cursor = %v, want %v", i, (*cursors)[i], want[i])
		}
	}
	if len(recorder.pages) != 3 || recorder.pages[2].Cursor != "c3" || recorder.pages[2].Kind != PageFetch {
		t.Fatalf("unexpected recorded pages: %+v", recorder.pages)
	}
}

func TestFetchDevicesKeepsKnownDevices(t *testing.T) {
	f := newFakeService(t)
	f.handle(http.MethodPost, pathServerDevices, func(w http.ResponseWriter, _ *http.Request, n int, _ []byte) {
		devices := []map[string]any{listed("A", "iMac")}
		if n > 1 {
			devices = []map[string]any{listed("A", "Renamed"), listed("B", "iPad")}
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "cursor": "c", "more_to_follow": false})
	})
	client := newTestClient(t, f, nil)

	if _, err := client.FetchDevices(context.Background()); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if _, err := client.FetchDevices(context.Background()); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	dev, ok := client.Device("A")
	if !ok || dev.Model != "iMac" {
		t.Fatalf("listing must not overwrite a known device: %+v", dev)
	}
	if client.DeviceCount() != 2 {
		t.Fatalf("expected 2 devices, got %d", client.DeviceCount())
	}
}

func TestFetchDevicesStopsAtPageLimit(t *testing.T) {
	f := newFakeService(t)
	f.handle(http.MethodPost, pathServerDevices, func(w http.ResponseWriter, _ *http.Request, n int, _ []byte) {
		writeJSON(w, http.StatusOK, map[string]any{
			"devices":        []map[string]any{listed(string(rune('A'+n)), "iMac")},
			"cursor":         "loop",
			"more_to_follow": true,
		})
	})
	client := newTestClient(t, f, func(cfg *Config) { cfg.MaxPages = 2 })

	_, err := client.FetchDevices(context.Background())
	if !errors.Is(err, ErrPageLimitExceeded) {
		t.Fatalf("expected ErrPageLimitExceeded, got %v", err)
	}
	if got := f.count(http.MethodPost, pathServerDevices); got != 2 {
		t.Fatalf("expected 2 pages, got %d", got)
	}
	if client.DeviceCount() != 2 || client.Cursor() != "loop" {
		t.Fatalf("consumed pages must be kept: count=%d cursor=%q", client.DeviceCount(), client.Cursor())
	}
}

func TestFetchDevicesSkipsRecordsWithoutSerial(t *testing.T) {
	f := newFakeService(t)
	servePages(t, f, pathServerDevices, map[string]pageFixture{
		"": {devices: []map[string]any{{"model": "ghost"}, listed("A", "iMac")}, cursor: "c1"},
	})
	client := newTestClient(t, f, nil)

	devices, err := client.FetchDevices(context.Background())
	if err != nil {
		t.Fatalf("FetchDevices failed: %v", err)
	}
	if len(devices) != 1 || devices[0].SerialNumber != "A" {
		t.Fatalf("unexpected devices: %+v", devices)
	}
}

func TestSyncAddedThenDeletedRemovesDevice(t *testing.T) {
	f := newFakeService(t)
	servePages(t, f, pathDevicesSync, map[string]pageFixture{
		"": {
			devices: []map[string]any{
				changed("added", "X", map[string]any{"model": "iPhone"}),
				changed("deleted", "X", nil),
			},
			cursor: "s1",
		},
	})
	client := newTestClient(t, f, nil)

	count, err := client.SyncDevices(context.Background())
	if err != nil {
		t.Fatalf("SyncDevices failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty registry, got %d", count)
	}
	if _, ok := client.Device("X"); ok {
		t.Fatal("device X must be absent")
	}
	if client.Cursor() != "s1" {
		t.Fatalf("cursor = %q, want s1", client.Cursor())
	}
}

func TestSyncModifiedUnknownSerialIsSkipped(t *testing.T) {
	f := newFakeService(t)
	servePages(t, f, pathServerDevices, map[string]pageFixture{
		"": {devices: []map[string]any{listed("A", "iMac")}, cursor: "c1"},
	})
	servePages(t, f, pathDevicesSync, map[string]pageFixture{
		"c1": {devices: []map[string]any{changed("modified", "Y", map[string]any{"model": "ghost"})}, cursor: "c2"},
	})
	recorder := &pageCollector{}
	client := newTestClient(t, f, func(cfg *Config) { cfg.Recorder = recorder })

	if _, err := client.FetchDevices(context.Background()); err != nil {
		t.Fatalf("FetchDevices failed: %v", err)
	}
	count, err := client.SyncDevices(context.Background())
	if err != nil {
		t.Fatalf("SyncDevices failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("registry size changed: %d", count)
	}
	if _, ok := client.Device("Y"); ok {
		t.Fatal("modified must not create unknown devices")
	}
	last := recorder.pages[len(recorder.pages)-1]
	if last.Kind != PageSync || len(last.Ops) != 1 || last.Ops[0].Outcome != OutcomeMissing {
		t.Fatalf("unexpected sync page record: %+v", last)
	}
}

func TestSyncAppliesOperationsAcrossPages(t *testing.T) {
	f := newFakeService(t)
	servePages(t, f, pathServerDevices, map[string]pageFixture{
		"": {devices: []map[string]any{
			{"serial_number": "A", "model": "iMac", "asset_tag": "IT-1", "profile_status": "empty"},
			listed("B", "iPad"),
		}, cursor: "c1"},
	})
	cursors := servePages(t, f, pathDevicesSync, map[string]pageFixture{
		"c1": {devices: []map[string]any{
			changed("modified", "A", map[string]any{"profile_status": "assigned", "profile_uuid": "P-1", "asset_tag": ""}),
			changed("deleted", "B", nil),
		}, cursor: "c2", more: true},
		"c2": {devices: []map[string]any{
			changed("added", "C", map[string]any{"model": "MacBook Air"}),
			changed("reassigned", "A", nil),
		}, cursor: "c3"},
	})
	client := newTestClient(t, f, nil)

	if _, err := client.FetchDevices(context.Background()); err != nil {
		t.Fatalf("FetchDevices failed: %v", err)
	}
	count, err := client.SyncDevices(context.Background())
	if err != nil {
		t.Fatalf("SyncDevices failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 devices, got %d", count)
	}
	a, _ := client.Device("A")
	if a.ProfileStatus != ProfileStatusAssigned || a.ProfileUUID != "P-1" || a.AssetTag != "IT-1" {
		t.Fatalf("unexpected merge result: %+v", a)
	}
	if _, ok := client.Device("B"); ok {
		t.Fatal("deleted device B still registered")
	}
	if c, ok := client.Device("C"); !ok || c.Model != "MacBook Air" {
		t.Fatalf("added device C missing: %+v", c)
	}
	if client.Cursor() != "c3" {
		t.Fatalf("cursor = %q, want c3", client.Cursor())
	}
	if len(*cursors) != 2 || (*cursors)[0] != "c1" || (*cursors)[1] != "c2" {
		t.Fatalf("unexpected sync cursors: %v", *cursors)
	}
}

func TestSyncStartsFromConfiguredCursor(t *testing.T) {
	f := newFakeService(t)
	cursors := servePages(t, f, pathDevicesSync, map[string]pageFixture{
		"saved": {devices: []map[string]any{changed("added", "Z", nil)}, cursor: "next"},
	})
	client := newTestClient(t, f, func(cfg *Config) { cfg.Cursor = "saved" })

	if _, err := client.SyncDevices(context.Background()); err != nil {
		t.Fatalf("SyncDevices failed: %v", err)
	}
	if (*cursors)[0] != "saved" || client.Cursor() != "next" {
		t.Fatalf("cursors=%v current=%q", *cursors, client.Cursor())
	}
}

func TestSyncFailureKeepsLastConsumedCursor(t *testing.T) {
	f := newFakeService(t)
	servePages(t, f, pathDevicesSync, map[string]pageFixture{
		"":   {devices: []map[string]any{changed("added", "A", nil)}, cursor: "c1", more: true},
		"c1": {devices: []map[string]any{changed("added", "B", nil)}, cursor: "c2", more: true},
	})
	client := newTestClient(t, f, nil)

	count, err := client.SyncDevices(context.Background())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected RequestError(400), got %v", err)
	}
	if count != 2 || client.Cursor() != "c2" {
		t.Fatalf("applied pages must persist: count=%d cursor=%q", count, client.Cursor())
	}
}

func TestSyncRenewsSessionMidPagination(t *testing.T) {
	f := newFakeService(t)
	f.handle(http.MethodPost, pathDevicesSync, func(w http.ResponseWriter, r *http.Request, _ int, body []byte) {
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		if req["cursor"] == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"devices":        []map[string]any{changed("added", "A", nil)},
				"cursor":         "c1",
				"more_to_follow": true,
			})
			return
		}
		if r.Header.Get(headerSession) == "session-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"devices":        []map[string]any{changed("added", "B", nil)},
			"cursor":         "c2",
			"more_to_follow": false,
		})
	})
	client := newTestClient(t, f, nil)

	count, err := client.SyncDevices(context.Background())
	if err != nil {
		t.Fatalf("SyncDevices failed: %v", err)
	}
	if count != 2 || client.Cursor() != "c2" {
		t.Fatalf("count=%d cursor=%q", count, client.Cursor())
	}
	if got := f.count(http.MethodGet, pathSession); got != 2 {
		t.Fatalf("expected one renewal, got %d session calls", got)
	}
}

func TestSetCursorMovesSyncPosition(t *testing.T) {
	f := newFakeService(t)
	cursors := servePages(t, f, pathDevicesSync, map[string]pageFixture{
		"rewound": {cursor: "after"},
	})
	client := newTestClient(t, f, func(cfg *Config) { cfg.Cursor = "ignored" })

	client.SetCursor(" rewound ")
	if client.Cursor() != "rewound" {
		t.Fatalf("Cursor() = %q", client.Cursor())
	}
	if _, err := client.SyncDevices(context.Background()); err != nil {
		t.Fatalf("SyncDevices failed: %v", err)
	}
	if (*cursors)[0] != "rewound" || client.Cursor() != "after" {
		t.Fatalf("cursors=%v current=%q", *cursors, client.Cursor())
	}
}

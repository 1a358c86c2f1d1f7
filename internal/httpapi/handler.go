package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/httprunner/depsync"
)

// DeviceSource is the read side of the device roster.
type DeviceSource interface {
	Devices() []depsync.Device
	Device(serialNumber string) (depsync.Device, bool)
	DeviceCount() int
	Cursor() string
}

// Status describes the background sync loop.
type Status struct {
	LastSyncAt  time.Time `json:"last_sync_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Syncs       int       `json:"syncs"`
	Failures    int       `json:"failures"`
	Devices     int       `json:"devices"`
	Cursor      string    `json:"cursor,omitempty"`
	LastSuccess time.Time `json:"last_success_at,omitzero"`
}

// SyncTracker records sync outcomes for the status endpoints. The zero value
// is ready to use.
type SyncTracker struct {
	mu     sync.RWMutex
	status Status
}

// Record stores the outcome of one sync pass.
func (t *SyncTracker) Record(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Syncs++
	t.status.LastSyncAt = at
	if err != nil {
		t.status.Failures++
		t.status.LastError = err.Error()
		return
	}
	t.status.LastError = ""
	t.status.LastSuccess = at
}

// Status returns a copy of the tracked state.
func (t *SyncTracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Handler serves the read-only roster API.
type Handler struct {
	log     zerolog.Logger
	source  DeviceSource
	tracker *SyncTracker
	metrics http.Handler
}

// NewHandler builds the read-only API. tracker and metrics may be nil.
func NewHandler(log zerolog.Logger, source DeviceSource, tracker *SyncTracker, metrics http.Handler) *Handler {
	if tracker == nil {
		tracker = &SyncTracker{}
	}
	return &Handler{log: log, source: source, tracker: tracker, metrics: metrics}
}

// Router returns the chi router with every route and middleware mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.handleListDevices)
			r.Get("/{serial}", h.handleGetDevice)
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready once a sync pass has succeeded.
func (h *Handler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	status := h.tracker.Status()
	if status.LastSuccess.IsZero() {
		h.writeError(w, http.StatusServiceUnavailable, "not_ready", "no successful sync yet")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := h.tracker.Status()
	status.Devices = h.source.DeviceCount()
	status.Cursor = h.source.Cursor()
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := h.source.Devices()
	if want := strings.TrimSpace(r.URL.Query().Get("profile_status")); want != "" {
		filtered := devices[:0]
		for _, dev := range devices {
			if strings.EqualFold(string(dev.ProfileStatus), want) {
				filtered = append(filtered, dev)
			}
		}
		devices = filtered
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	dev, ok := h.source.Device(serial)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "device not found")
		return
	}
	h.writeJSON(w, http.StatusOK, dev)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string) {
	h.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	})
}

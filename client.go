package depsync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/httprunner/depsync/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config holds everything needed to build a Client.
type Config struct {
	// ServiceURL defaults to DefaultServiceURL.
	ServiceURL string
	Credential Credential
	// Cursor is the initial sync position, e.g. saved from an earlier run.
	Cursor    string
	UserAgent string
	// Timeout bounds a single HTTP exchange; defaults to DefaultHTTPTimeout.
	Timeout time.Duration
	// MaxPages caps one listing or sync walk. Zero uses DefaultMaxPages and a
	// negative value disables the cap.
	MaxPages int
	// FetchLimit is sent as the page size hint; zero leaves it to the server.
	FetchLimit int

	// Transport is the base RoundTripper below the signer.
	Transport http.RoundTripper
	Noncer    oauth1.Noncer
	Recorder  Recorder
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Client mirrors the enrolled device roster of one account. Operations are
// serialised; read accessors may be called concurrently with a running sync.
type Client struct {
	exec     *requestExecutor
	session  *sessionAuthenticator
	registry *DeviceRegistry
	engine   *syncEngine
	metrics  *metrics.Metrics
	now      func() time.Time

	mu sync.Mutex

	cursorMu sync.RWMutex
	cursor   string
}

// NewClient validates cfg, then bootstraps a session. An expired credential
// fails with *ConfigurationError before any request is sent; a rejected
// session fails with *AuthenticationError.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if err := cfg.Credential.Validate(now()); err != nil {
		return nil, err
	}
	baseURL, err := parseServiceURL(cfg.ServiceURL)
	if err != nil {
		return nil, err
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	maxPages := cfg.MaxPages
	if maxPages == 0 {
		maxPages = DefaultMaxPages
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}

	signer := NewSigner(cfg.Credential, cfg.Noncer)
	exec := &requestExecutor{
		baseURL:   baseURL,
		userAgent: userAgent,
		transport: newHTTPTransport(signer, cfg.Transport, cfg.Timeout),
		metrics:   cfg.Metrics,
	}
	session := newSessionAuthenticator(exec, cfg.Metrics)
	exec.session = session

	c := &Client{
		exec:     exec,
		session:  session,
		registry: NewDeviceRegistry(),
		metrics:  cfg.Metrics,
		now:      now,
		cursor:   strings.TrimSpace(cfg.Cursor),
	}
	c.engine = &syncEngine{
		exec:        exec,
		registry:    c.registry,
		recorder:    recorder,
		metrics:     cfg.Metrics,
		storeCursor: c.setCursor,
		maxPages:    maxPages,
		limit:       cfg.FetchLimit,
		now:         now,
	}

	if err := session.renew(ctx); err != nil {
		return nil, errors.Wrap(err, "depsync: bootstrap session")
	}
	log.Info().Str("service_url", baseURL.String()).Msg("depsync: client ready")
	return c, nil
}

func parseServiceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultServiceURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigurationError{Field: "service_url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ConfigurationError{Field: "service_url", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return nil, &ConfigurationError{Field: "service_url", Reason: "host is empty"}
	}
	return u, nil
}

// AccountDetails returns the account description as decoded JSON.
func (c *Client) AccountDetails(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passthrough(ctx, http.MethodGet, pathAccount, nil)
}

// FetchDevices walks the full listing and returns the resulting roster.
// Devices already known keep their attributes.
func (c *Client) FetchDevices(ctx context.Context) ([]Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.engine.fetchAll(ctx, "")
	c.metrics.SetRegistrySize(c.registry.Len(), c.now())
	if err != nil {
		return nil, errors.Wrap(err, "depsync: fetch devices")
	}
	return c.registry.All(), nil
}

// SyncDevices applies the changes since the current cursor and returns the
// number of registered devices.
func (c *Client) SyncDevices(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	count, err := c.engine.syncSince(ctx, c.Cursor())
	c.metrics.SetRegistrySize(count, c.now())
	if err != nil {
		return count, errors.Wrap(err, "depsync: sync devices")
	}
	return count, nil
}

// AddProfile defines a new enrollment profile.
func (c *Client) AddProfile(ctx context.Context, profile Profile) (map[string]any, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passthrough(ctx, http.MethodPost, pathProfile, profile)
}

// AssignProfile assigns profileUUID to the given serial numbers.
func (c *Client) AssignProfile(ctx context.Context, profileUUID string, serialNumbers []string) (map[string]any, error) {
	profileUUID = strings.TrimSpace(profileUUID)
	if profileUUID == "" {
		return nil, errors.New("depsync: profile uuid is empty")
	}
	serials := make([]string, 0, len(serialNumbers))
	for _, s := range serialNumbers {
		if s = strings.TrimSpace(s); s != "" {
			serials = append(serials, s)
		}
	}
	if len(serials) == 0 {
		return nil, errors.New("depsync: no serial numbers to assign")
	}
	payload := struct {
		ProfileUUID string   `json:"profile_uuid"`
		Devices     []string `json:"devices"`
	}{ProfileUUID: profileUUID, Devices: serials}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passthrough(ctx, http.MethodPut, pathProfileDevices, payload)
}

// Devices returns a snapshot of the roster ordered by serial number.
func (c *Client) Devices() []Device {
	return c.registry.All()
}

// Device returns a copy of one registered device.
func (c *Client) Device(serialNumber string) (Device, bool) {
	return c.registry.Snapshot(serialNumber)
}

// DeviceCount returns the roster size.
func (c *Client) DeviceCount() int {
	return c.registry.Len()
}

// Cursor returns the latest cursor consumed from the service.
func (c *Client) Cursor() string {
	c.cursorMu.RLock()
	defer c.cursorMu.RUnlock()
	return c.cursor
}

// SetCursor moves the sync position, e.g. back to a cursor saved by an
// earlier run so SyncDevices replays the changes made since then.
func (c *Client) SetCursor(cursor string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCursor(strings.TrimSpace(cursor))
}

func (c *Client) setCursor(cursor string) {
	c.cursorMu.Lock()
	c.cursor = cursor
	c.cursorMu.Unlock()
}

func (c *Client) passthrough(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	resp, err := c.exec.execute(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(resp.Body))
	decoder.UseNumber()
	var parsed map[string]any
	if err := decoder.Decode(&parsed); err != nil {
		return nil, errors.Wrapf(err, "depsync: decode %s response", path)
	}
	return parsed, nil
}

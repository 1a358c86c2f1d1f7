package depsync

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotAuthenticated is returned when no session token has been obtained yet.
	ErrNotAuthenticated = errors.New("depsync: session not authenticated")
	// ErrPageLimitExceeded is returned when the server keeps reporting
	// more_to_follow past the configured page cap.
	ErrPageLimitExceeded = errors.New("depsync: page limit exceeded")
)

// ConfigurationError reports an unusable client configuration. It is raised
// before any network call is made.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "depsync: configuration error: " + e.Reason
	}
	return fmt.Sprintf("depsync: configuration error: %s: %s", e.Field, e.Reason)
}

// AuthenticationError reports a rejected session renewal.
type AuthenticationError struct {
	StatusCode int
	Body       string
	Reason     string
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("depsync: session renewal failed: status=%d", e.StatusCode)
	if e.Reason != "" {
		msg += " reason=" + e.Reason
	}
	if body := truncateBody(e.Body); body != "" {
		msg += " body=" + body
	}
	return msg
}

// RequestError reports a non-success response that could not be recovered
// by the single session renewal.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("depsync: request %s %s failed: status=%d body=%s",
		e.Method, e.Path, e.StatusCode, truncateBody(e.Body))
}

// TransportError wraps a network level failure. It is never retried.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("depsync: transport %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func truncateBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= maxErrorBody {
		return body
	}
	return body[:maxErrorBody] + "..."
}

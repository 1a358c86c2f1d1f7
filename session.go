package depsync

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/httprunner/depsync/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// sessionSender performs a single signed exchange with an explicit session
// token ("" sends none).
type sessionSender interface {
	send(ctx context.Context, method, path string, payload any, token string) (*response, error)
}

// sessionAuthenticator owns the ephemeral session token. The token is
// replaced wholesale on renewal and cleared when renewal fails.
type sessionAuthenticator struct {
	sender  sessionSender
	metrics *metrics.Metrics

	mu    sync.RWMutex
	token string

	group singleflight.Group
}

func newSessionAuthenticator(sender sessionSender, m *metrics.Metrics) *sessionAuthenticator {
	return &sessionAuthenticator{sender: sender, metrics: m}
}

// currentToken returns the held token or ErrNotAuthenticated.
func (s *sessionAuthenticator) currentToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNotAuthenticated
	}
	return s.token, nil
}

// renew requests a fresh token from the session endpoint. Concurrent callers
// share a single request.
func (s *sessionAuthenticator) renew(ctx context.Context) error {
	_, err, _ := s.group.Do("session", func() (any, error) {
		return nil, s.renewOnce(ctx)
	})
	return err
}

func (s *sessionAuthenticator) renewOnce(ctx context.Context) error {
	token, err := s.requestToken(ctx)
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.metrics.IncSessionRenewal(err == nil)
	if err != nil {
		log.Error().Err(err).Msg("depsync: session renewal failed")
		return err
	}
	log.Info().Msg("depsync: session token renewed")
	return nil
}

func (s *sessionAuthenticator) requestToken(ctx context.Context) (string, error) {
	resp, err := s.sender.send(ctx, http.MethodGet, pathSession, nil, "")
	if err != nil {
		return "", err
	}
	if !resp.success() {
		return "", &AuthenticationError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	var parsed struct {
		AuthSessionToken string `json:"auth_session_token"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", &AuthenticationError{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Reason:     "decode session response: " + err.Error(),
		}
	}
	token := strings.TrimSpace(parsed.AuthSessionToken)
	if token == "" {
		return "", &AuthenticationError{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Reason:     "auth_session_token missing in response",
		}
	}
	return token, nil
}

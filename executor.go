package depsync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/httprunner/depsync/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// requestExecutor composes headers, signing and the transport, and retries a
// call exactly once after renewing the session on 401.
type requestExecutor struct {
	baseURL   *url.URL
	userAgent string
	transport *httpTransport
	session   *sessionAuthenticator
	metrics   *metrics.Metrics
}

// execute runs one logical call. The renewal request never goes through
// execute, so a 401 on /session cannot recurse.
func (e *requestExecutor) execute(ctx context.Context, method, path string, payload any) (*response, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	resp, err := e.sendRaw(ctx, method, path, raw, e.sessionToken())
	if err != nil {
		return nil, err
	}
	if resp.success() {
		return resp, nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		log.Info().
			Str("method", method).
			Str("path", path).
			Msg("depsync: session rejected, renewing")
		if err := e.session.renew(ctx); err != nil {
			return nil, err
		}
		resp, err = e.sendRaw(ctx, method, path, raw, e.sessionToken())
		if err != nil {
			return nil, err
		}
		if resp.success() {
			return resp, nil
		}
	}
	return nil, &RequestError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
	}
}

// send implements sessionSender for the session endpoint.
func (e *requestExecutor) send(ctx context.Context, method, path string, payload any, token string) (*response, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return e.sendRaw(ctx, method, path, raw, token)
}

func (e *requestExecutor) sessionToken() string {
	token, err := e.session.currentToken()
	if err != nil {
		return ""
	}
	return token
}

func (e *requestExecutor) sendRaw(ctx context.Context, method, path string, raw []byte, token string) (*response, error) {
	req, err := e.newRequest(ctx, method, path, raw, token)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := e.transport.do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	e.metrics.ObserveRequest(method, path, status, time.Since(start))
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("path", path).Msg("depsync: request failed")
		return nil, err
	}
	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("http_status", resp.StatusCode).
		Int("bytes", len(resp.Body)).
		Dur("elapsed", time.Since(start)).
		Msg("depsync: response")
	return resp, nil
}

func (e *requestExecutor) newRequest(ctx context.Context, method, path string, raw []byte, token string) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, errors.Wrapf(err, "depsync: parse request path %q", path)
	}
	var body io.Reader
	if raw != nil {
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "depsync: build request")
	}
	req.Header.Set(headerProtocolVersion, protocolVersion)
	req.Header.Set(headerContentType, jsonContentType)
	req.Header.Set(headerUserAgent, e.userAgent)
	if token != "" {
		req.Header.Set(headerSession, token)
	}
	return req, nil
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "depsync: marshal request payload")
	}
	return raw, nil
}

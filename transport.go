package depsync

import (
	"io"
	"net/http"
	"time"
)

// response is a fully read HTTP response.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *response) success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// httpTransport performs exactly one exchange per call. Failures are returned
// as *TransportError and never retried here.
type httpTransport struct {
	client *http.Client
}

func newHTTPTransport(signer *Signer, base http.RoundTripper, timeout time.Duration) *httpTransport {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &httpTransport{
		client: &http.Client{
			Transport: signer.RoundTripper(base),
			Timeout:   timeout,
		},
	}
}

func (t *httpTransport) do(req *http.Request) (*response, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.URL.Path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.URL.Path, Err: err}
	}
	return &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

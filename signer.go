package depsync

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

// Credential is the long-lived signing credential issued with the server
// token. It never changes during the lifetime of a client.
type Credential struct {
	ConsumerKey       string    `json:"consumer_key"`
	ConsumerSecret    string    `json:"consumer_secret"`
	AccessToken       string    `json:"access_token"`
	AccessSecret      string    `json:"access_secret"`
	AccessTokenExpiry time.Time `json:"access_token_expiry"`
}

// Validate checks that every field is set and the access token has not
// expired at now.
func (c Credential) Validate(now time.Time) error {
	required := []struct {
		field, value string
	}{
		{"consumer_key", c.ConsumerKey},
		{"consumer_secret", c.ConsumerSecret},
		{"access_token", c.AccessToken},
		{"access_secret", c.AccessSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ConfigurationError{Field: r.field, Reason: "must not be empty"}
		}
	}
	if c.AccessTokenExpiry.IsZero() {
		return &ConfigurationError{Field: "access_token_expiry", Reason: "must be set"}
	}
	if !c.AccessTokenExpiry.After(now) {
		return &ConfigurationError{
			Field:  "access_token_expiry",
			Reason: "access token expired at " + c.AccessTokenExpiry.UTC().Format(time.RFC3339),
		}
	}
	return nil
}

// Signer adds an OAuth1 (HMAC-SHA1, realm ADM) Authorization header to every
// request passing through the RoundTripper it builds.
type Signer struct {
	config *oauth1.Config
	token  *oauth1.Token
}

// NewSigner builds a Signer for cred. A nil noncer uses the library default.
func NewSigner(cred Credential, noncer oauth1.Noncer) *Signer {
	config := oauth1.NewConfig(cred.ConsumerKey, cred.ConsumerSecret)
	config.Realm = oauthRealm
	config.Noncer = noncer
	return &Signer{
		config: config,
		token:  oauth1.NewToken(cred.AccessToken, cred.AccessSecret),
	}
}

// RoundTripper wraps base so that requests are signed right before dispatch,
// after all other headers have been attached. A nil base uses
// http.DefaultTransport.
func (s *Signer) RoundTripper(base http.RoundTripper) http.RoundTripper {
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, &http.Client{Transport: base})
	}
	return s.config.Client(ctx, s.token).Transport
}

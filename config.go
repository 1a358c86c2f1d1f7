package depsync

import (
	"encoding/json"
	"os"

	"github.com/httprunner/depsync/internal/config"
	"github.com/pkg/errors"
)

// ConfigFromEnv builds a Config from environment variables (and the nearest
// .env file).
//
// Credentials come from DEP_TOKEN_FILE, a JSON server token with
// consumer_key, consumer_secret, access_token, access_secret and
// access_token_expiry, or from the individual variables:
//   - DEP_CONSUMER_KEY, DEP_CONSUMER_SECRET
//   - DEP_ACCESS_TOKEN, DEP_ACCESS_SECRET
//   - DEP_ACCESS_TOKEN_EXPIRY (RFC3339)
//
// Individual variables override values read from the token file.
//
// Optional variables: DEP_SERVICE_URL, DEP_CURSOR, DEP_USER_AGENT,
// DEP_HTTP_TIMEOUT, DEP_MAX_PAGES, DEP_FETCH_LIMIT.
func ConfigFromEnv() (Config, error) {
	var cred Credential
	if path := config.String(EnvTokenFile, ""); path != "" {
		loaded, err := LoadCredential(path)
		if err != nil {
			return Config{}, err
		}
		cred = loaded
	}
	cred.ConsumerKey = config.String(EnvConsumerKey, cred.ConsumerKey)
	cred.ConsumerSecret = config.String(EnvConsumerSecret, cred.ConsumerSecret)
	cred.AccessToken = config.String(EnvAccessToken, cred.AccessToken)
	cred.AccessSecret = config.String(EnvAccessSecret, cred.AccessSecret)
	expiry, err := config.Time(EnvAccessTokenExpiry)
	if err != nil {
		return Config{}, &ConfigurationError{Field: EnvAccessTokenExpiry, Reason: err.Error()}
	}
	if !expiry.IsZero() {
		cred.AccessTokenExpiry = expiry
	}

	return Config{
		ServiceURL: config.String(EnvServiceURL, DefaultServiceURL),
		Credential: cred,
		Cursor:     config.String(EnvCursor, ""),
		UserAgent:  config.String(EnvUserAgent, DefaultUserAgent),
		Timeout:    config.Duration(EnvHTTPTimeout, DefaultHTTPTimeout),
		MaxPages:   config.Int(EnvMaxPages, DefaultMaxPages),
		FetchLimit: config.Int(EnvFetchLimit, 0),
	}, nil
}

// LoadCredential reads a JSON server token file.
func LoadCredential(path string) (Credential, error) {
	var cred Credential
	raw, err := os.ReadFile(path)
	if err != nil {
		return cred, errors.Wrapf(err, "read token file %s", path)
	}
	if err := json.Unmarshal(raw, &cred); err != nil {
		return cred, &ConfigurationError{Field: EnvTokenFile, Reason: "decode token file: " + err.Error()}
	}
	return cred, nil
}

package depsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func clearDEPEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvServiceURL, EnvTokenFile, EnvConsumerKey, EnvConsumerSecret,
		EnvAccessToken, EnvAccessSecret, EnvAccessTokenExpiry, EnvCursor,
		EnvUserAgent, EnvHTTPTimeout, EnvMaxPages, EnvFetchLimit,
	} {
		t.Setenv(key, "")
	}
}

func TestConfigFromEnvReadsTokenFileAndOverrides(t *testing.T) {
	clearDEPEnv(t)
	path := filepath.Join(t.TempDir(), "token.json")
	raw := `{
		"consumer_key": "CK_file",
		"consumer_secret": "CS_file",
		"access_token": "AT_file",
		"access_secret": "AS_file",
		"access_token_expiry": "2031-01-01T00:00:00Z"
	}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}
	t.Setenv(EnvTokenFile, path)
	t.Setenv(EnvAccessSecret, "AS_env")
	t.Setenv(EnvServiceURL, "https://dep.example")
	t.Setenv(EnvMaxPages, "5")
	t.Setenv(EnvHTTPTimeout, "15s")
	t.Setenv(EnvCursor, "saved")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.Credential.ConsumerKey != "CK_file" || cfg.Credential.AccessSecret != "AS_env" {
		t.Fatalf("unexpected credential: %+v", cfg.Credential)
	}
	wantExpiry := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.Credential.AccessTokenExpiry.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %v", cfg.Credential.AccessTokenExpiry, wantExpiry)
	}
	if cfg.ServiceURL != "https://dep.example" || cfg.MaxPages != 5 || cfg.Timeout != 15*time.Second || cfg.Cursor != "saved" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Fatalf("user agent = %q", cfg.UserAgent)
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	clearDEPEnv(t)
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.ServiceURL != DefaultServiceURL || cfg.MaxPages != DefaultMaxPages || cfg.Timeout != DefaultHTTPTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	var cfgErr *ConfigurationError
	if err := cfg.Credential.Validate(time.Now()); !errors.As(err, &cfgErr) {
		t.Fatalf("empty credential must fail validation, got %v", err)
	}
}

func TestConfigFromEnvRejectsMalformedExpiry(t *testing.T) {
	clearDEPEnv(t)
	t.Setenv(EnvAccessTokenExpiry, "next tuesday")

	_, err := ConfigFromEnv()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != EnvAccessTokenExpiry {
		t.Fatalf("expected ConfigurationError for expiry, got %v", err)
	}
}

func TestLoadCredentialErrors(t *testing.T) {
	if _, err := LoadCredential(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	var cfgErr *ConfigurationError
	if _, err := LoadCredential(path); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

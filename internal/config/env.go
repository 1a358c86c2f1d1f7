package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/httprunner/depsync/internal/env"
	"github.com/rs/zerolog/log"
)

var ensureOnce sync.Once

func ensureEnvLoaded() {
	ensureOnce.Do(func() {
		_ = env.Ensure()
	})
}

func lookup(key string) string {
	ensureEnvLoaded()
	return strings.TrimSpace(os.Getenv(key))
}

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	if val := lookup(key); val != "" {
		return val
	}
	return fallback
}

// Duration parses a Go duration, returning fallback when unset or invalid.
func Duration(key string, fallback time.Duration) time.Duration {
	if val := lookup(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", val).Msg("depsync: invalid duration, using fallback")
	}
	return fallback
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	if val := lookup(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", val).Msg("depsync: invalid integer, using fallback")
	}
	return fallback
}

// Bool parses 1/true/yes and 0/false/no.
func Bool(key string, fallback bool) bool {
	if val := lookup(key); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return fallback
}

// Time parses an RFC3339 timestamp. The error is non-nil only when the
// variable is set but malformed.
func Time(key string) (time.Time, error) {
	val := lookup(key)
	if val == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, val)
}

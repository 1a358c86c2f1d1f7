package depsync

import "time"

// Endpoints of the enrollment directory service.
const (
	DefaultServiceURL = "https://mdmenrollment.apple.com"

	pathSession        = "/session"
	pathAccount        = "/account"
	pathServerDevices  = "/server/devices"
	pathDevicesSync    = "/devices/sync"
	pathProfile        = "/profile"
	pathProfileDevices = "/profile/devices"
)

// Headers attached to every signed call.
const (
	headerProtocolVersion = "X-Server-Protocol-Version"
	headerSession         = "X-ADM-Auth-Session"
	headerContentType     = "Content-Type"
	headerUserAgent       = "User-Agent"

	protocolVersion = "2"
	jsonContentType = "application/json;charset=UTF8"
	oauthRealm      = "ADM"
)

const (
	DefaultUserAgent   = "depsync/1.0"
	DefaultHTTPTimeout = 60 * time.Second
	// DefaultMaxPages bounds a single listing or sync walk.
	DefaultMaxPages = 1000

	maxErrorBody = 512
)

// Environment variable names read by ConfigFromEnv.
const (
	EnvServiceURL        = "DEP_SERVICE_URL"
	EnvTokenFile         = "DEP_TOKEN_FILE"
	EnvConsumerKey       = "DEP_CONSUMER_KEY"
	EnvConsumerSecret    = "DEP_CONSUMER_SECRET"
	EnvAccessToken       = "DEP_ACCESS_TOKEN"
	EnvAccessSecret      = "DEP_ACCESS_SECRET"
	EnvAccessTokenExpiry = "DEP_ACCESS_TOKEN_EXPIRY"
	EnvCursor            = "DEP_CURSOR"
	EnvUserAgent         = "DEP_USER_AGENT"
	EnvHTTPTimeout       = "DEP_HTTP_TIMEOUT"
	EnvMaxPages          = "DEP_MAX_PAGES"
	EnvFetchLimit        = "DEP_FETCH_LIMIT"
	EnvJournalPath       = "DEP_JOURNAL_PATH"
)

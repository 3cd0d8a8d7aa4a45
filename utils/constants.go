package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for operator access tokens (12 hours)
	AccessTokenTTL = 12 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Request context keys
type contextKey string

const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	OperatorIDKey contextKey = "operator_id"
)

// Referral constants
const (
	MinReferralYear = 2000
	MaxReferralYear = 2100

	// DefaultCountryCode is the calling code prefixed to national numbers (Turkey)
	DefaultCountryCode = "90"

	// DefaultStagingTTL bounds how long a staged increment waits for confirmation
	DefaultStagingTTL = 30 * time.Minute

	// MaxNotesLength caps the free-text notes stored per period
	MaxNotesLength = 4000

	// DefaultLookupCacheTTL is how long secondary lookup results stay cached
	DefaultLookupCacheTTL = 10 * time.Minute
)

// DefaultSwitchboardNumbers are shared clinic and call-center lines that never
// belong to an individual specialist.
var DefaultSwitchboardNumbers = []string{
	"4440000",
	"4449999",
	"08502220000",
	"02122220000",
	"03122220000",
}

// Honorific tokens stripped from specialist names before matching
var HonorificTokens = []string{
	"dr", "uzm", "psk", "prof", "doç", "doc", "op", "dt", "yrd", "kl", "exp",
}

package sapiom

import (
	"time"

	"go.uber.org/zap"
)

// Package defaults. A nil AuthorizedEndpoints list means every outgoing
// request is authorized.
const (
	DefaultAuthorizationTimeout = 30 * time.Second
	DefaultPollingInterval      = 1 * time.Second
)

// Config holds the SDK settings shared by both handlers.
type Config struct {
	// AuthorizationTimeout is the hard wall-clock window for a poll,
	// measured from when polling for an id began.
	AuthorizationTimeout time.Duration

	// PollingInterval is the sleep between status fetches.
	PollingInterval time.Duration

	// RaiseOnDenied controls whether a pre-request denial raises an
	// AuthorizationDeniedError (true, default) or silently passes the
	// request through without a transaction header (false). Timeouts are
	// always raised.
	RaiseOnDenied bool

	// AuthorizedEndpoints is the ordered rule list deciding which requests
	// need pre-request authorization. Empty means authorize everything.
	AuthorizedEndpoints []EndpointRule

	// Logger receives SDK diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger

	// Hooks are observational callbacks. They never alter control flow.
	Hooks Hooks

	// AuthorizationEnabled and PaymentEnabled toggle each handler
	// independently when attached via a Client.
	AuthorizationEnabled bool
	PaymentEnabled       bool
}

// EndpointRule matches outgoing requests that require authorization and
// supplies the identifying fields forwarded on the created transaction.
// Per-call overrides take precedence over rule values.
type EndpointRule struct {
	// Method matches the request method: empty or "*" matches any, a
	// single method matches exactly (case-insensitive), and a
	// comma-free list may be given via Methods.
	Method  string
	Methods []string

	// PathPattern is matched against the request URL path using
	// path.Match semantics ("/api/*" style globs). A trailing "/**"
	// matches any sub-path.
	PathPattern string

	ServiceName string
	ActionName  string
	Qualifiers  map[string]string
	Metadata    map[string]interface{}
}

// Option configures a Client.
type Option func(*Config)

// WithAuthorizationTimeout sets the poll window.
func WithAuthorizationTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AuthorizationTimeout = d
	}
}

// WithPollingInterval sets the sleep between status fetches.
func WithPollingInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PollingInterval = d
	}
}

// WithRaiseOnDenied controls denial handling; see Config.RaiseOnDenied.
func WithRaiseOnDenied(raise bool) Option {
	return func(c *Config) {
		c.RaiseOnDenied = raise
	}
}

// WithAuthorizedEndpoints sets the ordered endpoint rule list.
func WithAuthorizedEndpoints(rules ...EndpointRule) Option {
	return func(c *Config) {
		c.AuthorizedEndpoints = rules
	}
}

// WithLogger sets the zap logger used for SDK diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithAuthorizationDisabled turns off the pre-request interceptor.
func WithAuthorizationDisabled() Option {
	return func(c *Config) {
		c.AuthorizationEnabled = false
	}
}

// WithPaymentDisabled turns off the 402 response interceptor.
func WithPaymentDisabled() Option {
	return func(c *Config) {
		c.PaymentEnabled = false
	}
}

func defaultConfig() Config {
	return Config{
		AuthorizationTimeout: DefaultAuthorizationTimeout,
		PollingInterval:      DefaultPollingInterval,
		RaiseOnDenied:        true,
		Logger:               zap.NewNop(),
		AuthorizationEnabled: true,
		PaymentEnabled:       true,
	}
}

package apiclient

import (
	"net/url"
	"strings"
	"time"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 100 * time.Millisecond
	DefaultRefreshPath    = "/auth/refresh"
	DefaultRefreshRetries = 1
	DefaultUserAgent      = "fleetctl-apiclient"
)

// Config is the construction-time configuration of a Client.
type Config struct {
	// BaseURL is required, e.g. https://api.example.com.
	BaseURL string

	// Timeout bounds each individual transport call. An expired timeout is a
	// NetworkError and is eligible for retry.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	// Zero means DefaultRetryAttempts; a negative value disables retries.
	RetryAttempts int

	// RetryBaseDelay is the first backoff step of the default RetryDelay.
	RetryBaseDelay time.Duration

	// RetryDelay maps a zero-based attempt index to the wait before the next
	// attempt. Defaults to ExponentialBackoff(RetryBaseDelay).
	RetryDelay Backoff

	// RefreshPath is the refresh endpoint relative to BaseURL.
	RefreshPath string

	// RefreshRetries bounds transport-level retries (network errors and 5xx)
	// of the refresh call itself. Zero means DefaultRefreshRetries; negative
	// disables them.
	RefreshRetries int

	UserAgent string
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	switch {
	case c.RetryAttempts == 0:
		c.RetryAttempts = DefaultRetryAttempts
	case c.RetryAttempts < 0:
		c.RetryAttempts = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryDelay == nil {
		c.RetryDelay = ExponentialBackoff(c.RetryBaseDelay)
	}
	if c.RefreshPath == "" {
		c.RefreshPath = DefaultRefreshPath
	}
	switch {
	case c.RefreshRetries == 0:
		c.RefreshRetries = DefaultRefreshRetries
	case c.RefreshRetries < 0:
		c.RefreshRetries = 0
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Validate checks that BaseURL is an absolute http(s) URL.
func (c Config) Validate() error {
	return ValidateBaseURL(c.BaseURL)
}

// ValidateBaseURL reports a *ValidationError for anything other than an
// absolute http or https URL with a host.
func ValidateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ValidationError{Field: "baseURL", Message: "cannot be empty"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "baseURL", Message: "invalid URL format: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "baseURL", Message: "scheme must be http or https, got: " + u.Scheme}
	}
	if u.Host == "" {
		return &ValidationError{Field: "baseURL", Message: "must include a host"}
	}
	return nil
}

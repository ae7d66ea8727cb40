package config

import "errors"

// Sentinel errors for configuration loading. Sources wrap these so callers
// can distinguish a missing configuration from a malformed one with
// errors.Is.
var (
	// ErrNotFound indicates the requested configuration does not exist:
	// a missing config directory or file, or an agent with no active
	// version row.
	ErrNotFound = errors.New("configuration not found")

	// ErrMalformed indicates configuration data that exists but cannot
	// be parsed.
	ErrMalformed = errors.New("configuration malformed")
)

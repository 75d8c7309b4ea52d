package config

import (
	"errors"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

/*
Validation rules are strict.
A relay pointed at a malformed upstream must refuse to start.
*/

func validate(c Config) error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fieldError("listen_addr", "is required")
	}

	u, err := url.Parse(c.UpstreamURL)
	if err != nil {
		return fieldError("upstream_url", "is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fieldError("upstream_url", "scheme must be http or https")
	}
	if u.Host == "" {
		return fieldError("upstream_url", "host is required")
	}

	if strings.TrimSpace(c.LogPath) == "" {
		return fieldError("log_path", "is required")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fieldError("log_level", "must be one of trace, debug, info, warn, error")
	}

	if c.MaxBodyBytes <= 0 {
		return fieldError("max_body_bytes", "must be positive")
	}

	if c.Timeouts.Read < 0 || c.Timeouts.Write < 0 || c.Timeouts.Idle < 0 || c.Timeouts.Upstream < 0 {
		return fieldError("timeouts", "must not be negative")
	}

	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		return fieldError("rate_limit", "must not be negative")
	}
	if c.RateLimit.Enabled() && c.RateLimit.Burst == 0 {
		return fieldError("rate_limit.burst", "must be at least 1 when per_second is set")
	}

	if c.Auth.Enabled() {
		if strings.TrimSpace(c.Auth.Issuer) == "" {
			return fieldError("auth.issuer", "is required when public_key_file is set")
		}
		if strings.TrimSpace(c.Auth.Audience) == "" {
			return fieldError("auth.audience", "is required when public_key_file is set")
		}
	}

	return nil
}

func fieldError(field, msg string) error {
	return errors.New("config: " + field + " " + msg)
}

package config

import (
	"errors"
	"fmt"
	"time"
)

// Duration is a time.Duration read from YAML or env strings such as "30s".
// Timeouts and intervals in this config are never negative.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

const redacted = "[REDACTED]"

// Secret holds the token signing key. It prints as a placeholder so the
// config can be logged with %v; Value returns the key.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Value returns the secret.
func (s Secret) Value() string {
	return string(s)
}

// UnmarshalText implements encoding.TextUnmarshaler. The placeholder is
// rejected so a printed config cannot be fed back with a fake key.
func (s *Secret) UnmarshalText(text []byte) error {
	if string(text) == redacted {
		return errors.New("secret value is a redaction placeholder")
	}
	*s = Secret(text)
	return nil
}

package config

// Secret is a string that never prints its value.
type Secret string

const redacted = "[redacted]"

// Value returns the secret in clear text.
func (s Secret) Value() string {
	return string(s)
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString keeps %#v from printing the value.
func (s Secret) GoString() string {
	return s.String()
}

// MarshalText implements encoding.TextMarshaler so the value never lands in
// JSON or YAML output.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. envdecode uses it for
// environment overrides.
func (s *Secret) UnmarshalText(b []byte) error {
	*s = Secret(b)
	return nil
}

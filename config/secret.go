package config

import "encoding/json"

const redacted = "[REDACTED]"

// Secret is a configuration value that must not be printed or logged.
type Secret string

func (s Secret) Value() string { return string(s) }

func (s Secret) Empty() bool { return s == "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

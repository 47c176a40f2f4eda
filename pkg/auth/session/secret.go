package session

// Secret holds a signing key. It redacts itself in String, GoString and
// MarshalText so that it cannot leak through logs or serialized config. Use
// [Secret.Value] only where the raw key is passed to a cryptographic call.
type Secret string

const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder for %#v.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// MarshalText returns the redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

package types

// redactedPlaceholder is rendered by every diagnostic or serialisation
// path touching a Secret.
const redactedPlaceholder = "[REDACTED]"

// Secret is an opaque holder for a credential (C2). The only way to
// read the inner value is Expose, which outbound HTTP construction
// calls at the call site; every other path — String, MarshalJSON, a
// %v/%s format verb, a zerolog field — renders the fixed placeholder.
type Secret struct {
	value string
	set   bool
}

// NewSecret wraps value in a Secret. An empty string produces an unset Secret.
func NewSecret(value string) Secret {
	return Secret{value: value, set: value != ""}
}

// Expose returns the inner value. This is the single sanctioned
// accessor; callers must not log or print its result.
func (s Secret) Expose() string {
	return s.value
}

// IsSet reports whether a non-empty value was provided.
func (s Secret) IsSet() bool {
	return s.set
}

func (s Secret) String() string {
	return redactedPlaceholder
}

// MarshalJSON never serialises the inner value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// MarshalText satisfies encoding.TextMarshaler for TOML encoders that
// prefer it over MarshalJSON.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redactedPlaceholder), nil
}

package idempotency

import "fmt"

const maxKeyLength = 50

// Key is a validated, caller-supplied idempotency token. It scopes one
// logical attempt of a side-effecting operation across retries.
type Key struct {
	raw string
}

// ParseKey validates a raw token. Keys must be non-empty, at most 50
// characters, and limited to ASCII alphanumerics, '-' and '_' so they can
// be used directly as a natural key in storage.
func ParseKey(raw string) (Key, error) {
	if raw == "" {
		return Key{}, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(raw) > maxKeyLength {
		return Key{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidKey, maxKeyLength)
	}
	for _, c := range []byte(raw) {
		if !isKeyByte(c) {
			return Key{}, fmt.Errorf("%w: character %q not allowed", ErrInvalidKey, c)
		}
	}
	return Key{raw: raw}, nil
}

func isKeyByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}

// String exposes the raw token for use as a storage parameter.
func (k Key) String() string {
	return k.raw
}

// Package idgen produces the identifiers used for requests and audit
// entries. IDs are UUIDv7 (time-sortable) with an optional type prefix.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID
// (e.g. "req_", "aud_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}

// Reuse returns candidate when it is prefix followed by a valid UUID, and a
// fresh ID from gen otherwise. It lets callers propagate a request ID set by
// an upstream proxy without trusting arbitrary header content.
func Reuse(candidate, prefix string, gen Generator) string {
	rest, ok := strings.CutPrefix(candidate, prefix)
	if ok && rest != "" {
		if canon, err := Parse(rest); err == nil {
			return prefix + canon
		}
	}
	return gen()
}

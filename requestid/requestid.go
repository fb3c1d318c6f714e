// Package requestid generates the per-request identifiers bound into every
// signed payload.
//
// Identifiers are lowercase, hyphenated version-4 UUIDs (36 characters).
// They are drawn from crypto/rand; if the secure source fails a
// math/rand fill is used with the version and variant bits still set.
//
// See RFC 9562 section 5.4.
package requestid

import (
	"math/rand"

	"github.com/google/uuid"
)

// Generator produces fresh request identifiers.
type Generator interface {
	Generate() string
}

// Func adapts an ordinary function to the Generator interface.
type Func func() string

// Generate calls f().
func (f Func) Generate() string { return f() }

// Default is the generator backed by New.
var Default Generator = Func(New)

// New returns a new UUIDv4 string.
func New() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fallback()
	}

	return id.String()
}

// fallback builds a UUIDv4 from a non-cryptographic source.
func fallback() string {
	var id uuid.UUID

	for i := 0; i < len(id); i += 8 {
		v := rand.Uint64()
		for j := 0; j < 8; j++ {
			id[i+j] = byte(v >> (8 * j))
		}
	}

	id[6] = (id[6] & 0x0f) | 0x40 // version 4
	id[8] = (id[8] & 0x3f) | 0x80 // variant 10

	return id.String()
}

// Valid reports whether id is a lowercase, hyphenated UUIDv4 string.
func Valid(id string) bool {
	if len(id) != 36 {
		return false
	}

	for i := 0; i < len(id); i++ {
		c := id[i]
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				return false
			}
		}
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}

	return parsed.Version() == 4 && parsed.Variant() == uuid.RFC4122
}

// Package token generates and structurally validates booking tokens.
//
// Tokens are bearer capabilities embedded in shareable URLs; unguessability
// is what protects them, so generation draws from crypto/rand. The alphabet
// deliberately excludes visually ambiguous characters (0/O, 1/I/l) to reduce
// transcription errors when a token is read aloud or copy-pasted.
package token

import (
	"crypto/rand"
	"fmt"
)

const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

const (
	DefaultLength = 16
	MinLength     = 8
	MaxLength     = 32
)

// Generate returns a random token of the given length. A length outside
// the valid shape bounds falls back to DefaultLength.
func Generate(length int) string {
	if length < MinLength || length > MaxLength {
		length = DefaultLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("token: reading random source: %v", err))
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

// IsValidShape is a fast structural filter applied before any storage
// lookup: alphanumeric, length within [MinLength, MaxLength]. It is not a
// security boundary.
func IsValidShape(token string) bool {
	if len(token) < MinLength || len(token) > MaxLength {
		return false
	}
	for _, r := range token {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

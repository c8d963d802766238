// Package idgen generates opaque task identifiers.
package idgen

import (
	"crypto/rand"
	"fmt"
)

// base36Alphabet is the character set for task ids (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// IDLength is the fixed length of a task id.
const IDLength = 8

// NewID returns a fresh random 8-character id drawn uniformly from the
// base36 alphabet. Uniqueness is not guaranteed; the insert path checks the
// store and retries on collision.
func NewID() (string, error) {
	out := make([]byte, 0, IDLength)
	buf := make([]byte, 16)
	for len(out) < IDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			// Rejection sampling keeps the distribution uniform:
			// 252 is the largest multiple of 36 below 256.
			if b >= 252 {
				continue
			}
			out = append(out, base36Alphabet[int(b)%len(base36Alphabet)])
			if len(out) == IDLength {
				break
			}
		}
	}
	return string(out), nil
}

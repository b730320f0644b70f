// Package slugs generates short random tokens for person slugs and member
// capability links.
package slugs

import (
	"crypto/rand"
)

// The letters l and o are left out to avoid confusion with 1 and 0.
const (
	chars   = "abcdefghijkmnpqrstuvwxyz0123456789"
	letters = "abcdefghijkmnpqrstuvwxyz"
)

// Random returns n random characters. When leadingLetter is set the first
// character is never a digit, so slugs cannot be mistaken for message ids in
// permalinks.
func Random(n int, leadingLetter bool) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("slugs: crypto/rand failed: " + err.Error())
	}
	out := make([]byte, n)
	for i, b := range buf {
		alphabet := chars
		if leadingLetter && i == 0 {
			alphabet = letters
		}
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

// Token returns a 16 character capability token.
func Token() string {
	return Random(16, false)
}

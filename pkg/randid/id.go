// Package randid generates short random identifiers for runs and
// scaffolded resources.
package randid

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generate returns a random lowercase alphanumeric string of the given
// length. It panics only if the system source of randomness is unavailable.
func Generate(length int) string {
	if length <= 0 {
		return ""
	}

	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("randid: read random source: " + err.Error())
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b)
}

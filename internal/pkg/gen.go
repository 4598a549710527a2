package pkg

import (
	"crypto/rand"
	"math/big"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// GenerateSessionCode returns a short shareable session code. Uniqueness is
// enforced by the store; callers retry on collision.
func GenerateSessionCode() string {
	code := make([]byte, codeLength)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))

	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand failing means the process has bigger problems
			panic(err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}

	return string(code)
}

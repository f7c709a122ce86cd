// Package accountnumber produces candidate public account numbers. The
// generator only promises a well-formed token; uniqueness is enforced by the
// database constraint and the registration retry loop that sits on top of it.
package accountnumber

import (
	"crypto/rand"
	"math/big"
)

// Length is the fixed width of every account number.
const Length = 10

// Generate returns a random 10-digit numeric account number. The first digit
// is never zero so the width is stable in any rendering.
func Generate() (string, error) {
	digits := make([]byte, Length)

	first, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return "", err
	}
	digits[0] = byte('1' + first.Int64())

	for i := 1; i < Length; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}

	return string(digits), nil
}

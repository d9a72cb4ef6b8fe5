package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

// NewCode returns a fixed-width decimal recovery code drawn uniformly from
// [10^(digits-1), 10^digits), so a 6-digit code has 900,000 possible
// values and never a leading zero. The digit count is the only entropy
// knob; the attempt budget and lockout are the mitigation for the small
// code space.
func NewCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	low := int64(1)
	for i := 1; i < digits; i++ {
		low *= 10
	}

	n, err := rand.Int(rand.Reader, big.NewInt(low*9))
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(low+n.Int64(), 10), nil
}

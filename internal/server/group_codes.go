package server

import (
	"errors"
	"math/rand"
	"strconv"
)

// Group codes are 3-digit numerals, "100" through "999".
const (
	codeMin       = 100
	codeSpaceSize = 900
)

// GenerateGroupCode picks a fresh code by uniform random sampling, resampling
// on collision with usedCodes. Returns a CAPACITY_EXHAUSTED error once every
// code in the space is live, rather than spinning forever.
func GenerateGroupCode(usedCodes map[string]bool) (string, error) {
	if len(usedCodes) >= codeSpaceSize {
		return "", errors.New("CAPACITY_EXHAUSTED: All group codes are in use")
	}

	for {
		code := strconv.Itoa(codeMin + rand.Intn(codeSpaceSize))
		if !usedCodes[code] {
			return code, nil
		}
	}
}

func ValidateGroupCode(code string) error {
	if len(code) != 3 {
		return errors.New("INVALID_CODE: Group code must be exactly 3 digits")
	}

	if code[0] < '1' || code[0] > '9' {
		return errors.New("INVALID_CODE: Group code must start with a digit 1-9")
	}
	for _, ch := range code[1:] {
		if ch < '0' || ch > '9' {
			return errors.New("INVALID_CODE: Group code must contain only digits")
		}
	}

	return nil
}

package validation

import (
	"errors"
	"strings"
	"unicode"
)

var (
	ErrCityEmpty        = errors.New("city is required")
	ErrCityTooShort     = errors.New("city too short")
	ErrCityTooLong      = errors.New("city too long")
	ErrCityInvalidChars = errors.New("city contains invalid characters")
)

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in runes;
// zero disables a bound) and restricts it to letters, combining marks, digits,
// space and , - . '
// Returns the trimmed city. Case is preserved.
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

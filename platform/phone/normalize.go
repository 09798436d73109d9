// Package phone validates lead phone numbers.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "IN"

// NationalLength is the number of digits a dialable lead number must have.
const NationalLength = 10

// Reason names why a candidate number was rejected.
type Reason string

const (
	ReasonEmpty      Reason = "empty"
	ReasonLength     Reason = "wrong_length"
	ReasonFormatted  Reason = "formatted"
	ReasonNotANumber Reason = "not_a_number"
)

// Check returns the canonical 10-digit number for input, or the reason it
// was rejected.
//
// Input is treated as the integer the upstream sends: only bare digit strings
// qualify, and leading zeros do not count, so "0123456789" is nine digits and
// rejected. A formatted string that phonenumbers recognises as a possible
// number is reported as ReasonFormatted so operators can tell sloppy
// formatting from junk.
func Check(input string) (string, Reason) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ReasonEmpty
	}

	if !isDigits(trimmed) {
		if looksLikePhone(trimmed) {
			return "", ReasonFormatted
		}
		return "", ReasonNotANumber
	}

	digits := strings.TrimLeft(trimmed, "0")
	if len(digits) != NationalLength {
		return "", ReasonLength
	}
	return digits, ""
}

func looksLikePhone(s string) bool {
	number, err := phonenumbers.Parse(s, defaultRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsPossibleNumber(number)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

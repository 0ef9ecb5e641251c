package sanitize

import (
	"strings"
	"unicode"
)

// Identity trims an identity string (user name, external id) and strips control characters
func Identity(input string) string {
	return strings.TrimSpace(StripControlCharacters(input))
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	if strings.IndexFunc(input, unicode.IsControl) < 0 {
		return input
	}
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxNameLength matches the first/last name column width.
const maxNameLength = 150

// SanitizeName trims a name field, drops control characters and collapses
// inner runs of whitespace to one space.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
	return strings.Join(strings.Fields(name), " ")
}

// ValidateStringLength validates that a string is within the specified
// length constraints, counted in characters.
func ValidateStringLength(field, value string, min, max int) error {
	length := utf8.RuneCountInString(value)

	if min > 0 && length < min {
		return fmt.Errorf("%s must be at least %d characters long", field, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s must be at most %d characters long", field, max)
	}
	return nil
}

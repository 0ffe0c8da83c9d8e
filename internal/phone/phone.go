// Package phone canonicalizes Vietnamese mobile numbers to the 10-digit
// local form used as the join key between messages and customers.
package phone

import "strings"

// Normalize returns the canonical 10-digit form of raw and true, or "" and
// false when raw cannot be resolved to one. It never fails otherwise.
//
// Steps: drop a trailing ".0" left by spreadsheet float conversion, keep
// digits only, rewrite a leading 84 country code to 0, restore a dropped
// leading zero on 9-digit numbers.
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, ".0")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "84") && len(digits) > 9 {
		digits = "0" + digits[2:]
	}
	if len(digits) == 9 && digits[0] != '0' {
		digits = "0" + digits
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}

// Valid reports whether s is already in canonical form.
func Valid(s string) bool {
	if len(s) != 10 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

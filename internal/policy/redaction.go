// Package policy masks personal data before chat text is written to conversation memory.
package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// International numbers only; bare digit runs are usually dates and times in this domain.
	phonePattern = regexp.MustCompile(`\+[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b[0-9]{4}(?:[ -]?[0-9]{4}){2,3}\b`)
)

// RedactPII masks email addresses, card numbers and international phone numbers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Cards before phones so a card number is not classified as a phone.
	next = cardPattern.ReplaceAllStringFunc(out, func(m string) string {
		if !luhnValid(m) {
			return m
		}
		return "[REDACTED_CARD]"
	})
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

func luhnValid(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return len(digits) >= 12 && sum%10 == 0
}

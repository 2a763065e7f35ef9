// Package phone normalizes Philippine mobile numbers to E.164 form. The same
// rule runs on the send and verify paths of the SMS fallback channel; if the
// two ever diverged, verification would silently fail.
package phone

import "strings"

// Normalize converts a phone number to +639XXXXXXXXX form. Numbers that do
// not fit any accepted shape normalize to the empty string and therefore can
// never match a stored contact.
func Normalize(number string) string {
	digits := digitsOnly(number)

	switch {
	case strings.HasPrefix(digits, "09") && len(digits) == 11:
		return "+63" + digits[1:]
	case strings.HasPrefix(digits, "9") && len(digits) == 10:
		return "+63" + digits
	case strings.HasPrefix(digits, "639") && len(digits) == 12:
		return "+" + digits
	default:
		return ""
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

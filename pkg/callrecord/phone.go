package callrecord

import "strings"

// NormalizePhone strips non-digit-non-plus characters and, when the
// result has no leading '+', assumes defaultCountry for a
// 10/11-digit US-shaped number, else prepends '+' to the digits as-is.
func NormalizePhone(raw, defaultCountry string) string {
	if defaultCountry == "" {
		defaultCountry = "+1"
	}
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	digits := cleaned
	switch {
	case len(digits) == 10:
		return defaultCountry + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1") && defaultCountry == "+1":
		return "+" + digits
	default:
		return "+" + digits
	}
}

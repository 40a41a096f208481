package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizeE164 strips a channel prefix such as "whatsapp:" and returns +digits.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if _, rest, ok := strings.Cut(value, ":"); ok {
		value = rest
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}

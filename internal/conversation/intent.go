package conversation

import (
	"regexp"
	"strings"
)

var interestKeywords = []string{
	"schedule", "meeting", "interested", "pricing", "cost", "interest",
	"sign up", "enroll", "register", "buy", "purchase", "want", "desire",
}

var namePhrases = []string{"name is", "i am", "i'm", "this is"}

var (
	phoneDigitsRE = regexp.MustCompile(`\d{10,}`)
	emailRE       = regexp.MustCompile(`[\w.-]+@[\w.-]+`)
)

// HasPurchaseIntent is a keyword heuristic; "I don't want anything" still matches.
func HasPurchaseIntent(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range interestKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// LooksLikeContactInfo reports whether message carries a phone number, an email
// address or a name announcement.
func LooksLikeContactInfo(message string) bool {
	if phoneDigitsRE.MatchString(message) || emailRE.MatchString(message) {
		return true
	}
	lower := strings.ToLower(message)
	for _, phrase := range namePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

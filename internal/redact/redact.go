// Package redact masks personally identifiable information in text before it
// is persisted. Live conversation shown to the user is never redacted — only
// what gets written into a memory record.
package redact

import (
	"regexp"
	"strings"
)

// Replacement tokens. Redaction is idempotent: the tokens themselves never
// match any pattern, so redacting twice is a no-op.
const (
	EmailToken    = "[EMAIL_REDACTED]"
	PhoneToken    = "[PHONE_REDACTED]"
	SSNToken      = "[SSN_REDACTED]"
	CardToken     = "[CARD_REDACTED]"
	PasswordToken = "[PASSWORD_REDACTED]"
	TokenToken    = "[TOKEN_REDACTED]"
)

// MinPhoneDigits is the minimum digit run treated as a phone number.
const MinPhoneDigits = 9

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	ssnRe   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	// Card numbers: 13-19 digits with optional space/dash/dot separators.
	// Candidates are confirmed with a Luhn check, or accepted outright when
	// the separator grouping looks like a card (4-4-4-4 style).
	cardRe = regexp.MustCompile(`\b\d(?:[ .-]?\d){12,18}\b`)

	// Phone-like runs: at least MinPhoneDigits digits allowing +, spaces,
	// parentheses and dashes between them.
	phoneRe = regexp.MustCompile(`\+?\d(?:[\s()./-]{0,2}\d){8,}`)

	passwordRe = regexp.MustCompile(`(?i)\b(password|pwd|passwd)\s*[:=]\s*\S+`)

	// key/token/secret labels followed by a value, and bearer-style prefixes
	// before a long alphanumeric run.
	tokenRe  = regexp.MustCompile(`(?i)\b(api[_-]?key|apikey|token|secret|key)\s*[:=]\s*\S+`)
	bearerRe = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._-]{16,}`)
)

// Redact masks emails, phone numbers, SSNs, card numbers, password pairs and
// API-key/token-looking strings. Pure and deterministic: same input, same
// output, no I/O. Matches are non-overlapping; card numbers are masked before
// the looser phone pattern can claim them.
func Redact(text string) string {
	if text == "" {
		return text
	}

	out := passwordRe.ReplaceAllString(text, PasswordToken)
	out = tokenRe.ReplaceAllString(out, TokenToken)
	out = bearerRe.ReplaceAllString(out, TokenToken)
	out = emailRe.ReplaceAllString(out, EmailToken)
	out = ssnRe.ReplaceAllString(out, SSNToken)

	out = cardRe.ReplaceAllStringFunc(out, func(m string) string {
		if looksLikeCard(m) {
			return CardToken
		}
		return m
	})

	out = phoneRe.ReplaceAllStringFunc(out, func(m string) string {
		if digitCount(m) >= MinPhoneDigits {
			return PhoneToken
		}
		return m
	})

	return out
}

// ContainsSensitive reports whether text holds anything Redact would mask or
// mentions a sensitive keyword. Used to flag fields before persistence.
func ContainsSensitive(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"password", "secret", "token", "api_key", "private_key", "credential", "auth_token"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if emailRe.MatchString(text) || phoneRe.MatchString(text) || ssnRe.MatchString(text) || cardRe.MatchString(text) {
		return true
	}
	return false
}

// looksLikeCard applies the card heuristic: 13-19 digits passing Luhn, or a
// separator-grouped number of exactly 13-19 digits.
func looksLikeCard(s string) bool {
	digits := digitsOnly(s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	if luhn(digits) {
		return true
	}
	// Grouped like 4111-1111-1111-1111 — treat as a card even if the
	// checksum fails (test numbers, typos).
	return strings.ContainsAny(s, " .-") && len(digits) >= 15
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

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func luhn(digits string) bool {
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
	return sum%10 == 0
}

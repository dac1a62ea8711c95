package dispatcher

import (
	"fmt"
	"strings"
)

// NormalizeE164 canonicalizes a stored phone number to E.164. Accepts an
// optional leading "+", digits, and common separators (spaces, dashes,
// dots, parentheses). Numbers without a leading "+" must already carry a
// country code; no default-region guessing here — ambiguous input is a
// dispatcher-level failure, not a transport call.
func NormalizeE164(phone string) (string, error) {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	var digits strings.Builder
	for _, r := range strings.TrimPrefix(trimmed, "+") {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separator, drop
		default:
			return "", fmt.Errorf("phone number contains invalid character %q", r)
		}
	}

	n := digits.String()
	if len(n) < 8 || len(n) > 15 {
		return "", fmt.Errorf("phone number has %d digits, expected 8-15", len(n))
	}
	if n[0] == '0' {
		return "", fmt.Errorf("phone number missing country code")
	}
	_ = hasPlus // "+" optional on input, always present on output

	return "+" + n, nil
}

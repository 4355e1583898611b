package validate

import "strings"

const (
	// MinSignatureTextLength is the shortest accepted typed signature
	MinSignatureTextLength = 2

	// MaxSignatureTextLength is the longest accepted typed signature
	MaxSignatureTextLength = 100
)

// SanitizeSignatureText trims and validates free-text typed-signature input.
// The accepted alphabet is letters, space, hyphen, apostrophe and period;
// digits and all other punctuation are rejected. The returned text is what
// gets rasterized into the typed-signature image.
func SanitizeSignatureText(raw string) (string, error) {
	text := strings.TrimSpace(raw)

	if len(text) < MinSignatureTextLength {
		return "", NewValidationError("signatureText", CodeTooShort,
			"signature text must be at least 2 characters")
	}
	if len(text) > MaxSignatureTextLength {
		return "", NewValidationError("signatureText", CodeTooLong,
			"signature text must be at most 100 characters")
	}

	// Control characters get a distinct reason: they indicate injected or
	// binary input rather than an unusual name.
	for _, r := range text {
		if r < 0x20 || r == 0x7F {
			return "", NewValidationError("signatureText", CodeControlCharacter,
				"signature text contains a control character")
		}
	}

	for _, r := range text {
		if !isSignatureTextRune(r) {
			return "", NewValidationError("signatureText", CodeInvalidCharacter,
				"signature text may only contain letters, spaces, hyphens, apostrophes and periods")
		}
	}

	return text, nil
}

func isSignatureTextRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r == ' ' || r == '-' || r == '\'' || r == '.':
		return true
	default:
		return false
	}
}

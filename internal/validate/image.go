package validate

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxImagePayloadLength caps the raw data-URL string (5MB)
	MaxImagePayloadLength = 5 * 1024 * 1024

	// MaxDecodedImageBytes caps the estimated decoded image size (2MB)
	MaxDecodedImageBytes = 2 * 1024 * 1024
)

// imagePayloadPattern accepts only raster image data URLs. SVG is excluded
// deliberately: it can carry script content and must never reach the DOM.
var imagePayloadPattern = regexp.MustCompile(`^data:image/(png|jpeg|jpg|gif|webp);base64,[A-Za-z0-9+/]+={0,2}$`)

// IsSafeImagePayload reports whether the candidate inline image payload is
// safe to display and store.
func IsSafeImagePayload(candidate string) bool {
	return CheckImagePayload(candidate) == nil
}

// CheckImagePayload validates an inline image payload and returns a
// ValidationError describing the first failed check.
func CheckImagePayload(candidate string) error {
	if candidate == "" {
		return NewValidationError("imagePayload", CodeEmpty, "image payload is empty")
	}
	if len(candidate) > MaxImagePayloadLength {
		return NewValidationError("imagePayload", CodePayloadTooLarge,
			"image payload exceeds the 5MB limit")
	}
	if strings.ContainsRune(candidate, 0) {
		return NewValidationError("imagePayload", CodeControlCharacter,
			"image payload contains a null byte")
	}
	if !imagePayloadPattern.MatchString(candidate) {
		return NewValidationError("imagePayload", CodeUnsafePayload,
			"image payload must be a base64 data URL with a png, jpeg, gif or webp type")
	}

	// Estimate the decoded size without decoding the whole body.
	comma := strings.IndexByte(candidate, ',')
	body := candidate[comma+1:]
	if decoded := len(body) * 3 / 4; decoded > MaxDecodedImageBytes {
		return NewValidationError("imagePayload", CodePayloadTooLarge,
			fmt.Sprintf("decoded image size %d exceeds the %d byte limit", decoded, MaxDecodedImageBytes))
	}
	return nil
}

// SanitizeImagePayload returns the payload unchanged when it is valid and
// ok=false otherwise. It never attempts partial repair: a payload that fails
// any check is rejected whole.
func SanitizeImagePayload(candidate string) (payload string, ok bool) {
	if err := CheckImagePayload(candidate); err != nil {
		return "", false
	}
	return candidate, true
}

// ImagePayloadBody returns the base64 body of a validated image payload.
// The second return is false when the payload is not a valid data URL.
func ImagePayloadBody(payload string) (string, bool) {
	if !imagePayloadPattern.MatchString(payload) {
		return "", false
	}
	comma := strings.IndexByte(payload, ',')
	return payload[comma+1:], true
}

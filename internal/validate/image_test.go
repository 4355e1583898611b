package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPNGPayload = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func TestIsSafeImagePayload(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		safe      bool
	}{
		{name: "valid png", candidate: validPNGPayload, safe: true},
		{name: "valid jpeg", candidate: "data:image/jpeg;base64,/9j/4AAQSkZJRg==", safe: true},
		{name: "valid webp", candidate: "data:image/webp;base64,UklGRg==", safe: true},
		{name: "empty", candidate: "", safe: false},
		{name: "svg is never accepted", candidate: "data:image/svg+xml;base64,PHN2Zz48L3N2Zz4=", safe: false},
		{name: "plain url", candidate: "https://example.com/sig.png", safe: false},
		{name: "not base64 encoded", candidate: "data:image/png,rawbytes", safe: false},
		{name: "invalid base64 characters", candidate: "data:image/png;base64,abc!!def", safe: false},
		{name: "trailing content", candidate: validPNGPayload + "\n<script>", safe: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.safe, IsSafeImagePayload(tt.candidate))
		})
	}
}

func TestCheckImagePayload_SizeLimits(t *testing.T) {
	// A body just over the decoded-size estimate limit.
	bigBody := strings.Repeat("A", (MaxDecodedImageBytes/3)*4+8)
	err := CheckImagePayload("data:image/png;base64," + bigBody)
	require.Error(t, err)
	ve, ok := IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodePayloadTooLarge, ve.Code)

	// A raw string over the 5MB cap.
	huge := "data:image/png;base64," + strings.Repeat("A", MaxImagePayloadLength)
	err = CheckImagePayload(huge)
	require.Error(t, err)
	ve, ok = IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodePayloadTooLarge, ve.Code)
}

func TestCheckImagePayload_NullByte(t *testing.T) {
	err := CheckImagePayload("data:image/png;base64,iVBOR\x00w0KGgo=")
	require.Error(t, err)
	ve, ok := IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeControlCharacter, ve.Code)
}

func TestSanitizeImagePayload(t *testing.T) {
	got, ok := SanitizeImagePayload(validPNGPayload)
	require.True(t, ok)
	assert.Equal(t, validPNGPayload, got, "valid payloads pass through unchanged")

	// Invalid payloads are rejected whole, never partially repaired.
	got, ok = SanitizeImagePayload("data:image/svg+xml;base64,PHN2Zz4=")
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestImagePayloadBody(t *testing.T) {
	body, ok := ImagePayloadBody("data:image/png;base64,aGVsbG8=")
	require.True(t, ok)
	assert.Equal(t, "aGVsbG8=", body)

	_, ok = ImagePayloadBody("not a data url")
	assert.False(t, ok)
}

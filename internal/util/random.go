package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + generateRandomHex(hexLength)
}

// generateRandomHex generates a random hexadecimal string of the specified
// length. Non-cryptographic; session IDs are capability tokens only within
// the respondent's own browser tab.
func generateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateSessionID generates a unique interview session ID with "s_" prefix.
func GenerateSessionID() string {
	return GenerateRandomID("s_", 32)
}

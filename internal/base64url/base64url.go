// Package base64url converts between the provider's URL-safe, unpadded base64
// alphabet and raw bytes.
package base64url

import (
	"encoding/base64"
	"strings"
)

// Decode decodes URL-safe base64 text, with or without padding.
// Malformed input yields an empty slice, never an error: callers treat an
// empty result as "no usable content".
func Decode(text string) []byte {
	text = strings.TrimSpace(text)
	if text == "" {
		return []byte{}
	}

	std := strings.NewReplacer("-", "+", "_", "/").Replace(text)
	std = strings.TrimRight(std, "=")
	if rem := len(std) % 4; rem != 0 {
		std += strings.Repeat("=", 4-rem)
	}

	data, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return []byte{}
	}
	return data
}

// DecodeString decodes URL-safe base64 text into a string.
func DecodeString(text string) string {
	return string(Decode(text))
}

// Encode encodes bytes into the URL-safe alphabet with all padding stripped.
func Encode(data []byte) string {
	std := base64.StdEncoding.EncodeToString(data)
	std = strings.NewReplacer("+", "-", "/", "_").Replace(std)
	return strings.TrimRight(std, "=")
}

// EncodeString encodes a string into the URL-safe alphabet.
func EncodeString(text string) string {
	return Encode([]byte(text))
}

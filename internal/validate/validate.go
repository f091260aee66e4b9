// Package validate enforces the input contract shared by the client
// layer and the server handlers: prompt length and content checks, MIME
// type and aspect ratio allow-listing, and the inbound payload size cap.
//
// The denylist below is a narrow heuristic against obvious markup and
// script injection in prompts that get echoed back as text. It is not a
// substitute for context-aware output encoding and is deliberately not
// expanded beyond the four patterns.
package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmptyPrompt     = errors.New("Prompt cannot be empty")
	ErrPromptTooShort  = errors.New("Prompt must be at least 3 characters")
	ErrPromptTooLong   = errors.New("Prompt must be less than 500 characters")
	ErrUnsafePrompt    = errors.New("Invalid characters detected")
	ErrPayloadTooLarge = errors.New("Payload too large")
)

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+=`),
	regexp.MustCompile(`(?i)eval\(`),
}

const (
	DefaultMimeType    = "image/jpeg"
	DefaultAspectRatio = "1:1"
)

var allowedMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

var allowedAspectRatios = map[string]bool{
	"1:1":  true,
	"3:4":  true,
	"4:3":  true,
	"16:9": true,
	"9:16": true,
}

// Prompt validates a free-text prompt against the given maximum length.
// The text is trimmed before any check. Lengths are counted in runes so
// multibyte prompts are not penalized by their encoding.
func Prompt(prompt string, maxLen int) error {
	trimmed := strings.TrimSpace(prompt)

	if trimmed == "" {
		return ErrEmptyPrompt
	}
	n := utf8.RuneCountInString(trimmed)
	if n < 3 {
		return ErrPromptTooShort
	}
	if n > maxLen {
		return ErrPromptTooLong
	}
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(trimmed) {
			return ErrUnsafePrompt
		}
	}
	return nil
}

// SanitizePrompt trims the prompt and strips literal angle brackets.
// Applied on top of the denylist check before a prompt is transmitted
// or stored, so contexts that render it back cannot see tag syntax.
func SanitizePrompt(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	return strings.NewReplacer("<", "", ">", "").Replace(trimmed)
}

// SafeMimeType returns mimeType unchanged when allow-listed, else the
// default. Defaulting is silent: an invalid value means "use default",
// not a rejected request.
func SafeMimeType(mimeType string) string {
	if allowedMimeTypes[mimeType] {
		return mimeType
	}
	return DefaultMimeType
}

// AllowedMimeType reports allow-list membership without defaulting, for
// callers that must reject rather than substitute (file uploads).
func AllowedMimeType(mimeType string) bool {
	return allowedMimeTypes[mimeType]
}

// SafeAspectRatio returns ratio unchanged when allow-listed, else "1:1".
func SafeAspectRatio(ratio string) string {
	if allowedAspectRatios[ratio] {
		return ratio
	}
	return DefaultAspectRatio
}

// PayloadSize rejects base64 image payloads whose encoded length exceeds
// the cap.
func PayloadSize(encoded string, max int) error {
	if len(encoded) > max {
		return ErrPayloadTooLarge
	}
	return nil
}

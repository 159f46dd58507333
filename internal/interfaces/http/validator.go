package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxSlugLength    = 64
	MaxMessageLength = 4000
	MaxNameLength    = 256
)

var slugRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidSlug checks if a tenant slug is safe (alphanumeric + underscore + hyphen)
func ValidSlug(s string) bool {
	if s == "" || len(s) > MaxSlugLength {
		return false
	}
	return slugRe.MatchString(s)
}

// ValidSessionID accepts the ids we mint plus external relay ids.
func ValidSessionID(s string) bool {
	if len(s) > 128 {
		return false
	}
	return s == "" || slugRe.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// TruncateString safely truncates a string to max length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

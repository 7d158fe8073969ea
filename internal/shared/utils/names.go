package utils

import (
	"regexp"
	"strings"
)

// maxNameLength is the longest name CKAN 2.11 accepts for organizations,
// datasets and resources.
const maxNameLength = 100

var invalidNameChars = regexp.MustCompile(`[^a-z0-9_\-]`)

// SanitizeName rewrites a source-side name so the target CKAN version
// accepts it: lower case, only [a-z0-9_-], at most 100 characters.
func SanitizeName(name string) string {
	if name == "" {
		return name
	}
	sanitized := invalidNameChars.ReplaceAllString(strings.ToLower(name), "_")
	if len(sanitized) > maxNameLength {
		sanitized = sanitized[:maxNameLength]
	}
	return sanitized
}

// TruncateString bounds a string to n characters, used for resource names
// and error excerpts.
func TruncateString(s string, n int) string {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// JoinURL joins a base URL and an API path with exactly one slash between
// them.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

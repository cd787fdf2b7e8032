package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization of the login identifier.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

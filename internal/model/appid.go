// Package model holds the small shared value types of the loader.
package model

// IsAppID reports whether s is a non-empty string of ASCII digits.
func IsAppID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

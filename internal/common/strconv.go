package common

import "strconv"

// AtoiDefault parses an integer, falling back to the default on error.
func AtoiDefault(value string, fallback int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

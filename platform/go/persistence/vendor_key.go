package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var vendorKeyPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// NormalizeVendorKey trims whitespace, lowercases the value, and ensures it
// matches the canonical slug pattern used for vendor keys across configs,
// batches and sales records.
func NormalizeVendorKey(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("vendor key is required")
	}

	normalized := strings.ToLower(trimmed)
	if !vendorKeyPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid vendor key %q: must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", input)
	}

	return normalized, nil
}

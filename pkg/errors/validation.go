package errors

import (
	"strings"
	"unicode"
)

// ValidateCrateName validates a crate name for safety and correctness.
// It rejects names that could be used for path traversal or injection attacks.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or null bytes
//   - No path separators or traversal sequences
//   - Maximum length of 64 characters (the crates.io limit)
//
// Registry-level naming policy (allowed character set, reserved names) is
// enforced by crates.io itself; this function only guards local file paths.
func ValidateCrateName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidCrate, "crate name cannot be empty")
	}

	if len(name) > 64 {
		return New(ErrCodeInvalidCrate, "crate name too long (max 64 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidCrate, "crate name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\\",   // Backslash (Windows path)
		"\x00", // Null byte
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidCrate, "crate name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateVersionReq validates a version requirement string.
// The requirement itself stays opaque (constraint solving happens in the
// registry); this only rejects strings that cannot be part of a request URL.
func ValidateVersionReq(req string) error {
	if req == "" {
		return nil
	}
	if len(req) > 128 {
		return New(ErrCodeInvalidVersion, "version requirement too long")
	}
	for _, r := range req {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidVersion, "version requirement contains whitespace or control characters")
		}
	}
	return nil
}

// Package sanitize provides shared identifier and filename sanitization.
//
// Collection names in the vector store must match: ^[a-z0-9_]{1,64}$
// and uploaded filenames must be safe to place on the local filesystem.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// MaxIdentifierLength is the maximum length for collection name components.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated identifiers.
	// Format: _<8-char-hash> = 9 characters total
	HashSuffixLength = 9

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "default"

	// MaxFilenameLength is the maximum length for a sanitized filename.
	MaxFilenameLength = 255
)

// filenameUnsafe matches characters that are stripped from uploaded filenames.
// Kept: letters, numbers, dots, dashes, underscores, spaces.
var filenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._\-\s]`)

// filenameCollapse collapses runs of whitespace and underscores.
var filenameCollapse = regexp.MustCompile(`[\s_]+`)

// Identifier sanitizes a string for use in collection names.
//
// Rules applied:
//   - Converts to lowercase
//   - Replaces invalid characters with underscores
//   - Collapses multiple underscores
//   - Trims leading/trailing underscores
//   - Truncates to MaxIdentifierLength with hash suffix if too long
//   - Returns DefaultIdentifier if result would be empty
//
// Examples:
//
//	"user_2abCdEf"  -> "user_2abcdef"
//	"My Tenant!"    -> "my_tenant"
//	"" or "!!!"     -> "default"
func Identifier(s string) string {
	if s == "" {
		return DefaultIdentifier
	}

	s = strings.ToLower(s)

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}

	sanitized := result.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		return DefaultIdentifier
	}

	if len(sanitized) > MaxIdentifierLength {
		sanitized = truncateWithHash(sanitized)
	}

	return sanitized
}

// truncateWithHash truncates a string to fit within MaxIdentifierLength,
// appending a short hash of the full value so distinct long inputs stay distinct.
func truncateWithHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(sum[:4])
	return s[:MaxIdentifierLength-HashSuffixLength] + suffix
}

// Filename sanitizes an uploaded filename so it is safe to store on disk.
//
// Rules applied:
//   - Strips any directory component (path traversal prevention)
//   - Replaces unsafe characters with underscores
//   - Neutralizes ".." sequences
//   - Collapses runs of whitespace/underscores to a single underscore
//   - Truncates to MaxFilenameLength preserving the extension
//
// Returns ErrInvalidFilename if the input is empty, has no extension,
// or sanitizes down to nothing.
func Filename(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidFilename
	}

	// Drop any path component; only the base name is usable.
	name = filepath.Base(name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", ErrInvalidFilename
	}

	name = filenameUnsafe.ReplaceAllString(name, "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = filenameCollapse.ReplaceAllString(name, "_")

	// Replacement underscores left touching a dot would otherwise survive
	// into the stored name ("my file (v2).txt" -> "my_file_v2_.txt").
	name = strings.ReplaceAll(name, "_.", ".")
	name = strings.ReplaceAll(name, "._", ".")

	if !strings.Contains(name, ".") {
		return "", ErrInvalidFilename
	}

	if len(name) > MaxFilenameLength {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		keep := MaxFilenameLength - len(ext)
		if keep < 1 {
			return "", ErrInvalidFilename
		}
		name = stem[:keep] + ext
	}

	name = strings.Trim(name, ". ")
	if name == "" || strings.HasPrefix(name, ".") {
		return "", ErrInvalidFilename
	}

	return name, nil
}

package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validation errors for security checks.
var (
	// ErrInvalidTenantID indicates the tenant ID format is invalid.
	ErrInvalidTenantID = errors.New("invalid tenant ID format")

	// ErrInvalidFilename indicates a filename is empty or unsafe.
	ErrInvalidFilename = errors.New("invalid filename")
)

// tenantIDPattern matches valid tenant identifiers as supplied by the
// identity middleware: alphanumeric with underscores and dashes.
var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateTenantID checks that a tenant ID conforms to the expected format.
// Tenant IDs are opaque identifiers, 1-255 chars, alphanumeric plus _ and -.
func ValidateTenantID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTenantID)
	}

	// Path traversal characters never appear in legitimate tenant IDs.
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("%w: contains path characters", ErrInvalidTenantID)
	}

	if len(id) > 255 {
		return fmt.Errorf("%w: exceeds 255 characters", ErrInvalidTenantID)
	}

	if !tenantIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, id)
	}

	return nil
}

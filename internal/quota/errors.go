package quota

import (
	"errors"
	"fmt"
)

// ErrUnknownTier is returned when an invalid tier name is supplied.
var ErrUnknownTier = errors.New("unknown tier")

// QuotaExceededError reports a quota violation with current usage, the limit
// that was hit, and upgrade guidance. It is always surfaced to the caller and
// never retried automatically.
type QuotaExceededError struct {
	TenantID string
	Resource string // "documents", "storage", "queries"
	Current  int64
	Limit    int64
	Guidance string
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s limit reached (%d/%d). %s",
		e.Resource, e.Current, e.Limit, e.Guidance)
}

// IsQuotaExceeded reports whether err is (or wraps) a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

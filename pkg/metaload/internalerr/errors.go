package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrConstraint       = errors.New("constraint violation")

	// ErrIntegrity means the store did not honour its contract, e.g. a row
	// written in this run could not be read back.
	ErrIntegrity = errors.New("integrity violation")
)

package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error codes
var (
	// Bad or missing configuration value or path
	ErrBadConfig = 11
	// CA certificate, key or CRL could not be read, parsed or verified
	ErrLoadMaterial = 23
	// The CA server was reachable when pruning was attempted
	ErrCAOnline = 31
	// Re-signing the pruned CRL failed
	ErrResign = 42
)

// PruneErr is a fatal error that aborts the whole pruning run. No partial
// CRL is ever written after one occurs.
type PruneErr struct {
	code int
	msg  string
}

// NewPruneError constructs a pruning error with the given code
func NewPruneError(code int, format string, args ...interface{}) *PruneErr {
	msg := fmt.Sprintf(format, args...)
	return &PruneErr{
		code: code,
		msg:  msg,
	}
}

// NewConfigError constructs an error for a bad or missing configuration value
func NewConfigError(format string, args ...interface{}) *PruneErr {
	return NewPruneError(ErrBadConfig, format, args...)
}

// NewLoadError constructs an error for unreadable or unverifiable key material
func NewLoadError(format string, args ...interface{}) *PruneErr {
	return NewPruneError(ErrLoadMaterial, format, args...)
}

// NewOnlineError constructs an error for a reachable CA server
func NewOnlineError(format string, args ...interface{}) *PruneErr {
	return NewPruneError(ErrCAOnline, format, args...)
}

// Error returns the string representation
func (pe *PruneErr) Error() string {
	return pe.String()
}

// String returns a string representation of this error
func (pe *PruneErr) String() string {
	return fmt.Sprintf("Code: %d - %s", pe.code, pe.msg)
}

// Code returns the error code of err, or 0 if err is not a pruning error
func Code(err error) int {
	if pe, ok := errors.Cause(err).(*PruneErr); ok {
		return pe.code
	}
	return 0
}

// IsConfigError returns true if err reports a bad or missing configuration
func IsConfigError(err error) bool {
	return Code(err) == ErrBadConfig
}

// IsLoadError returns true if err reports unloadable key material
func IsLoadError(err error) bool {
	return Code(err) == ErrLoadMaterial
}

// IsOnlineError returns true if err reports a reachable CA server
func IsOnlineError(err error) bool {
	return Code(err) == ErrCAOnline
}

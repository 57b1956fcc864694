// Package common - Shared error types for the decoding pipeline.
package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError reports a tensor shape mismatch, an invalid anchor or label table,
// or an invalid suppression setting.
//
// It is always fatal to the call that returned it. Re-invoking with the same input yields
// the same error, so callers should treat it as an integration bug and not retry.
type ConfigurationError struct {
	// Op is the operation that rejected its input (e.g. "decode", "suppress").
	Op string
	// Reason describes what was wrong.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Op == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("%s: configuration error: %s", e.Op, e.Reason)
}

// NewConfigurationError creates a ConfigurationError annotated with a stack trace.
//
// Arguments:
//   - op: The operation reporting the error.
//   - format: A fmt format string describing the problem.
//   - args: The format arguments.
//
// Returns:
//   - An error wrapping a *ConfigurationError.
//
// @example
// return nil, common.NewConfigurationError("decode", "tensor has %d dims, want 4", len(shape))
func NewConfigurationError(op, format string, args ...interface{}) error {
	return errors.WithStack(&ConfigurationError{
		Op:     op,
		Reason: fmt.Sprintf(format, args...),
	})
}

// IsConfigurationError reports whether any error in err's chain is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

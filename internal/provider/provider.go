// Package provider defines the abuse-intelligence provider adapter contract
// and its implementations.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ip-report-scanner/internal/types"
)

// Adapter wraps one external abuse-intelligence source. Implementations
// must be safe for concurrent use and must respect the caller's context
// deadline; they hold no observable state between calls.
type Adapter interface {
	// ID returns the provider identifier jobs are keyed by.
	ID() string

	// Scan queries the provider for one normalized address. Failures are
	// returned as *provider.Error with a classification.
	Scan(ctx context.Context, address string) (*types.ScanResult, error)
}

// Error is a classified provider failure.
type Error struct {
	Class   types.ErrorClass
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified provider error.
func NewError(class types.ErrorClass, message string) *Error {
	return &Error{Class: class, Message: message}
}

// WrapError creates a classified provider error wrapping a cause.
func WrapError(class types.ErrorClass, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

// Classify maps an adapter error to its failure classification.
// Context deadline expiry counts as a timeout regardless of how the
// adapter surfaced it.
func Classify(err error) (types.ErrorClass, string) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Class, perr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrorClassTimeout, err.Error()
	}
	if errors.Is(err, context.Canceled) {
		return types.ErrorClassCancelled, err.Error()
	}
	return types.ErrorClassUnknown, err.Error()
}

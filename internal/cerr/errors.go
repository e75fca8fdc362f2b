// Package cerr provides the cache's error classification.
//
// Usage errors are the only errors cachebay's query and fragment calls
// return: WriteQuery/WriteFragment and ReadQuery/ReadFragment report them
// for caller mistakes such as an empty id or a document that does not
// compile. Reading absent or partial data is not an error (see spec §7); it
// yields zero-shaped data for absent records.
package cerr

import (
	"errors"
	"fmt"
)

// Code classifies a CacheError for programmatic handling.
type Code string

const (
	// CodeUsage marks a synchronous caller mistake: bad id, bad fragment, etc.
	CodeUsage Code = "USAGE"
	// CodeNoProvider marks a composable invoked outside its provider context.
	CodeNoProvider Code = "NO_PROVIDER"
)

// CacheError is the single error type cachebay raises for usage mistakes.
type CacheError struct {
	Code      Code
	Operation string
	Message   string
	Cause     error
}

func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cachebay: %s: %s: %v", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("cachebay: %s: %s", e.Operation, e.Message)
}

func (e *CacheError) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, cerr.ErrUsage) style checks against the Code.
func (e *CacheError) Is(target error) bool {
	var other *CacheError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// Usage builds a CodeUsage error for operation op.
func Usage(op, message string) error {
	return &CacheError{Code: CodeUsage, Operation: op, Message: message}
}

// Usagef builds a CodeUsage error with a wrapped cause.
func Usagef(op, message string, cause error) error {
	return &CacheError{Code: CodeUsage, Operation: op, Message: message, Cause: cause}
}

// NoProvider builds a CodeNoProvider error for composables called outside a provider.
func NoProvider(op string) error {
	return &CacheError{Code: CodeNoProvider, Operation: op, Message: "called outside a cache provider context"}
}

// ErrUsage is a sentinel for errors.Is(err, cerr.ErrUsage).
var ErrUsage = &CacheError{Code: CodeUsage}

// ErrNoProvider is a sentinel for errors.Is(err, cerr.ErrNoProvider).
var ErrNoProvider = &CacheError{Code: CodeNoProvider}

package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidInput is wrapped by every validation failure
var ErrInvalidInput = errors.New("invalid input")

// OutOfRangeError reports a numeric value outside its inclusive bounds.
type OutOfRangeError struct {
	Key string
	Min int64
	Max int64
	Got string
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s must be between %d and %d (got %s)", e.Key, e.Min, e.Max, e.Got)
}

func (e *OutOfRangeError) Unwrap() error { return ErrInvalidInput }

// NotInAllowedSetError reports a value missing from a discrete allowed set.
type NotInAllowedSetError struct {
	Key     string
	Allowed []int64
	Got     string
}

func (e *NotInAllowedSetError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, a := range e.Allowed {
		allowed[i] = strconv.FormatInt(a, 10)
	}
	return fmt.Sprintf("%s must be one of [%s] (got %s)", e.Key, strings.Join(allowed, ", "), e.Got)
}

func (e *NotInAllowedSetError) Unwrap() error { return ErrInvalidInput }

// ConflictingFlagsError reports two opposite flags given together.
type ConflictingFlagsError struct {
	FlagA string
	FlagB string
}

func (e *ConflictingFlagsError) Error() string {
	return fmt.Sprintf("--%s and --%s cannot be used together", e.FlagA, e.FlagB)
}

func (e *ConflictingFlagsError) Unwrap() error { return ErrInvalidInput }

// InvalidBoolTokenError reports a toggle value other than 0 or 1.
type InvalidBoolTokenError struct {
	Key string
	Got string
}

func (e *InvalidBoolTokenError) Error() string {
	return fmt.Sprintf("%s must be 0 or 1 (got %s)", e.Key, e.Got)
}

func (e *InvalidBoolTokenError) Unwrap() error { return ErrInvalidInput }

// UnmanagedKeyError reports a typed command touching a key outside the
// managed allow-list.
type UnmanagedKeyError struct {
	Key string
}

func (e *UnmanagedKeyError) Error() string {
	return fmt.Sprintf("%s is not a managed setting; use the generic set command", e.Key)
}

func (e *UnmanagedKeyError) Unwrap() error { return ErrInvalidInput }

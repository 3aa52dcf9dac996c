package dataset

import (
	"errors"
	"fmt"
)

// Sentinel errors for dataset transforms.
var (
	ErrUnknownField = errors.New("unknown field")
	ErrUnknownOp    = errors.New("unknown derive operation")
	ErrBadPattern   = errors.New("invalid pattern")
)

// FieldError names the field a transform could not use.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

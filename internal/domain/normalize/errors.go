package normalize

import (
	"errors"
	"strings"
)

// ErrSchema matches every *SchemaError.
var ErrSchema = errors.New("schema mismatch")

// SchemaError reports required columns absent from the source header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// Is lets errors.Is(err, ErrSchema) match.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

package export

import "errors"

var (
	// ErrNilReport is returned when there is nothing to export.
	ErrNilReport = errors.New("export: nil report")
)

package report

import (
	"errors"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/normalize"
)

// Sentinel errors for report configuration.
var (
	ErrInvalidConfig  = errors.New("invalid report configuration")
	ErrUnknownVariant = errors.New("unknown source variant")
	ErrUnknownPage    = errors.New("unknown page")
)

// Kind classifies why a report could not be built.
type Kind string

// Error kinds.
const (
	KindFetch    Kind = "fetch"
	KindFormat   Kind = "format"
	KindSchema   Kind = "schema"
	KindEmpty    Kind = "empty"
	KindConfig   Kind = "config"
	KindNotFound Kind = "not_found"
	KindInternal Kind = "internal"
)

// Error is the single user-facing failure of a report run.
type Error struct {
	Page string
	Kind Kind
	Err  error
}

// NewError wraps err for page. An err that already is an *Error is returned as is.
func NewError(page string, kind Kind, err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return &Error{Page: page, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return "cannot build report: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// classify maps pipeline stage failures to a kind.
func classify(page string, err error) *Error {
	switch {
	case errors.Is(err, normalize.ErrSchema):
		return NewError(page, KindSchema, err)
	case errors.Is(err, aggregate.ErrEmpty):
		return NewError(page, KindEmpty, err)
	case errors.Is(err, ErrUnknownVariant):
		return NewError(page, KindNotFound, err)
	default:
		return NewError(page, KindConfig, err)
	}
}

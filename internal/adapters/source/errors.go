package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the source adapter.
var (
	ErrEmptyDocument = errors.New("empty document")
	ErrRowTooLong    = errors.New("row has more fields than the header")
	ErrBadStatus     = errors.New("unexpected status")
	ErrTooLarge      = errors.New("document too large")
)

// FetchError is a transport failure or a non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether retrying may succeed: transport errors, 5xx and
// 429 responses. A per-attempt timeout is transient; cancellation is not.
func (e *FetchError) Transient() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	}
	return false
}

// FormatError is a body that is not a usable CSV table.
type FormatError struct {
	Line int
	Err  error
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed csv at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed csv: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

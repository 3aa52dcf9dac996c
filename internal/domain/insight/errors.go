package insight

import "errors"

// Reasons a rule is skipped. A skipped rule never fails an evaluation.
var (
	ErrNotApplicable   = errors.New("rule not applicable")
	ErrUnknownMetric   = errors.New("unknown metric")
	ErrUnknownField    = errors.New("unknown field")
	ErrNoThreshold     = errors.New("threshold not configured")
	ErrInvalidTemplate = errors.New("invalid message template")
)

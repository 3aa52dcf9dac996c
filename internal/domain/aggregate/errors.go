package aggregate

import "errors"

// Sentinel errors for aggregation.
var (
	ErrUnknownField = errors.New("unknown field")
	ErrUnknownStat  = errors.New("unknown statistic")
	ErrEmpty        = errors.New("empty dataset")
)

// EmptyDatasetError is returned when nothing is left to aggregate, either
// because the dataset has no records or because every group key is missing.
type EmptyDatasetError struct {
	GroupKey string
}

func (e *EmptyDatasetError) Error() string {
	if e.GroupKey != "" {
		return "no records with a value for " + e.GroupKey
	}
	return "no records to aggregate"
}

// Is lets errors.Is(err, ErrEmpty) match.
func (e *EmptyDatasetError) Is(target error) bool { return target == ErrEmpty }

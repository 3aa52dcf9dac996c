package repository

import "errors"

// Sentinel errors for the dataset cache.
var (
	ErrNotFound = errors.New("dataset not cached")
)

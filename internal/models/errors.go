package models

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("requested dates are not available")
	ErrInvalidRange          = errors.New("check-out must be after check-in")
	ErrUnknownApartment      = errors.New("unknown apartment")
	ErrTooFewSegments        = errors.New("split stay requires at least two segments")
	ErrSegmentsNotContiguous = errors.New("segments must be contiguous and non-overlapping")
)

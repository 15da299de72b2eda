package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every kind aborts a run; callers classify with errors.Is.
var (
	ErrMissingInput     = errors.New("missing input")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyZone        = errors.New("empty aggregation zone")
	ErrAPIFailure       = errors.New("forecast api failure")
	ErrInvalidThreshold = errors.New("invalid threshold")
)

// MissingInputError reports an input file that does not exist.
type MissingInputError struct {
	Path string
	Err  error
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input %s: %v", e.Path, e.Err)
}

func (e *MissingInputError) Unwrap() []error { return []error{ErrMissingInput, e.Err} }

// APIError reports a failed forecast request for one grid point.
type APIError struct {
	PointID string
	Status  int
	Body    string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forecast request for %s: %v", e.PointID, e.Err)
	}
	return fmt.Sprintf("forecast request for %s: status %d: %s", e.PointID, e.Status, e.Body)
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAPIFailure, e.Err}
	}
	return []error{ErrAPIFailure}
}

// EmptyZoneError reports a zone without a single valid raster cell.
type EmptyZoneError struct {
	Zone string
	Band int
}

func (e *EmptyZoneError) Error() string {
	return fmt.Sprintf("zone %q has no valid cells in band %d", e.Zone, e.Band)
}

func (e *EmptyZoneError) Unwrap() error { return ErrEmptyZone }

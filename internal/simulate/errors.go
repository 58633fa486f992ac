package simulate

import "errors"

var (
	// ErrInvalidConfig is returned when a run is configured with impossible values.
	ErrInvalidConfig = errors.New("invalid simulation config")

	// ErrAllFailed is returned when no event of a run could be emitted.
	ErrAllFailed = errors.New("every emission failed")

	// ErrMismatch is returned when the observed tallies differ from what was emitted.
	ErrMismatch = errors.New("leaderboard does not match emitted events")

	// ErrRequest is returned when the mood server answers with an error status.
	ErrRequest = errors.New("mood server request failed")
)

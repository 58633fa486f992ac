package ingest

import "errors"

var (
	// ErrTransientSource marks a fetch or subscribe failure that is retried on the next cycle.
	ErrTransientSource = errors.New("transient source error")
	// ErrStopped is returned by a Start that was overtaken by Stop.
	ErrStopped = errors.New("ingestor stopped")
)

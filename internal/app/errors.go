package service

import "errors"

var (
	// ErrSubmission wraps a ledger write failure. The model is left untouched.
	ErrSubmission = errors.New("submission failed")

	// ErrNoIdentity is returned when an operation needs an actor and none is configured.
	ErrNoIdentity = errors.New("no identity configured")

	// ErrStopped is returned once the service has been torn down.
	ErrStopped = errors.New("service stopped")
)

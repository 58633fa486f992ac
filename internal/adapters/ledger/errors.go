package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrUnavailable = errors.New("ledger unavailable")
	ErrRejected    = errors.New("submission rejected")
	ErrBadPayload  = errors.New("bad ledger payload")
)

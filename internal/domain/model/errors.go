package model

import "errors"

// Sentinel kinds for model validation errors.
var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrUnknownSymbol   = errors.New("unknown symbol")
)

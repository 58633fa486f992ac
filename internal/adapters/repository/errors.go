package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("position not found")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrInvalidSymbol = errors.New("invalid symbol")
)

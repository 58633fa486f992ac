// Package repository holds the Position→Symbol store.
package repository

import (
	"context"

	"github.com/okian/moodblocks/internal/domain/model"
)

// Entry is one claimed position: the first record processed for it.
type Entry struct {
	Position uint64
	Symbol   model.Symbol
	Actor    string
}

// Store keeps one symbol per position. Entries are never overwritten or removed.
type Store interface {
	// Claim records symbol for the position if it has no entry yet.
	// Returns true if the store took the claim, false if the position was already held.
	Claim(ctx context.Context, rec model.Record) (bool, error)

	// Mood returns the symbol held for a position.
	// Returns ErrNotFound if the position is unknown.
	Mood(ctx context.Context, position uint64) (model.Symbol, error)

	// Latest returns up to n entries ordered by position desc.
	Latest(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of positions tracked.
	Count(ctx context.Context) int
}

package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one mood event: an actor set a symbol at a ledger position.
// Records are values and never mutated after creation.
type Record struct {
	Actor    string `json:"actor"`
	Position uint64 `json:"position"`
	Symbol   Symbol `json:"symbol"`
}

// Key returns the structural identity of the record.
func (r Record) Key() string {
	return r.Actor + "|" + strconv.FormatUint(r.Position, 10) + "|" + string(r.Symbol)
}

// Validate checks the record against the alphabet and shape rules.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Actor) == "" {
		return fmt.Errorf("%w: empty actor", ErrMalformedRecord)
	}
	if !r.Symbol.Valid() {
		return fmt.Errorf("%w: %w %q", ErrMalformedRecord, ErrUnknownSymbol, string(r.Symbol))
	}
	return nil
}

// RawRecord is an event as delivered by the ledger, before validation.
// Position is kept textual because ledgers ship it as a number or a string.
type RawRecord struct {
	Actor    string
	Position string
	Symbol   string
}

// Normalize converts a raw ledger payload into a Record.
// Errors wrap ErrMalformedRecord.
func Normalize(raw RawRecord) (Record, error) {
	pos := strings.TrimSpace(raw.Position)
	if pos == "" {
		return Record{}, fmt.Errorf("%w: missing position", ErrMalformedRecord)
	}
	base := 10
	if strings.HasPrefix(pos, "0x") || strings.HasPrefix(pos, "0X") {
		pos, base = pos[2:], 16
	}
	n, err := strconv.ParseUint(pos, base, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: position %q: %w", ErrMalformedRecord, raw.Position, err)
	}
	sym, err := ParseSymbol(raw.Symbol)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	r := Record{Actor: strings.TrimSpace(raw.Actor), Position: n, Symbol: sym}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// DropReason maps a normalization error to a short metrics label.
func DropReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, ErrMalformedRecord):
		return "malformed"
	default:
		return "other"
	}
}

// Source identifies which producer delivered a Batch.
type Source int

const (
	SourceSnapshot Source = iota + 1
	SourceLive
)

func (s Source) String() string {
	switch s {
	case SourceSnapshot:
		return "snapshot"
	case SourceLive:
		return "live"
	default:
		return "unknown"
	}
}

// Batch is the unit that flows through the inbox into the reconciliation engine.
type Batch struct {
	Source  Source
	Records []Record

	// Position is the ledger-reported current position, 0 when unknown.
	Position uint64
	// Top is the ledger's own top symbol, "" when unknown.
	Top Symbol

	// Identity history is scoped to a single actor and never merged into the model.
	Identity       string
	UserHistory    []Record
	HasUserHistory bool

	FetchedAt time.Time
}

// Package model contains the canonical domain types passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Symbol is one mood from the fixed alphabet.
type Symbol string

// The alphabet, in canonical order. Leaderboard ties are broken by this order.
const (
	Heart Symbol = "❤️"
	Cool  Symbol = "😎"
	Cry   Symbol = "😭"
	Angry Symbol = "😡"
)

// Alphabet returns the symbols in canonical order.
func Alphabet() []Symbol {
	return []Symbol{Heart, Cool, Cry, Angry}
}

var symbolNames = map[Symbol]string{
	Heart: "heart",
	Cool:  "cool",
	Cry:   "cry",
	Angry: "angry",
}

// Valid reports whether s belongs to the alphabet.
func (s Symbol) Valid() bool {
	_, ok := symbolNames[s]
	return ok
}

// Name returns the ascii name of the symbol, or "" for unknown symbols.
func (s Symbol) Name() string {
	return symbolNames[s]
}

// Index returns the position of s in the alphabet, -1 when unknown.
func (s Symbol) Index() int {
	for i, a := range Alphabet() {
		if a == s {
			return i
		}
	}
	return -1
}

func (s Symbol) String() string { return string(s) }

// ParseSymbol accepts an emoji from the alphabet or its name (case-insensitive).
// The heart is also accepted without its variation selector.
func ParseSymbol(v string) (Symbol, error) {
	v = strings.TrimSpace(v)
	if s := Symbol(v); s.Valid() {
		return s, nil
	}
	if v == "❤" {
		return Heart, nil
	}
	lower := strings.ToLower(v)
	for s, name := range symbolNames {
		if name == lower {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSymbol, v)
}

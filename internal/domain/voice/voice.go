// Package voice maps a speech transcript to a mood symbol.
package voice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/moodblocks/internal/domain/model"
)

// ErrNotUnderstood is returned when no keyword matches the transcript.
var ErrNotUnderstood = errors.New("transcript not understood")

// Keyword binds a word to the symbol it selects.
type Keyword struct {
	Word   string
	Symbol model.Symbol
}

// DefaultKeywords is checked in order; the first contained word wins.
func DefaultKeywords() []Keyword {
	return []Keyword{
		{"love", model.Heart},
		{"happy", model.Heart},
		{"cool", model.Cool},
		{"relaxed", model.Cool},
		{"sad", model.Cry},
		{"cry", model.Cry},
		{"angry", model.Angry},
		{"mad", model.Angry},
	}
}

// Recognizer turns transcripts into symbols.
type Recognizer struct {
	keywords []Keyword
}

// New builds a recognizer. Without keywords it uses DefaultKeywords.
func New(keywords ...Keyword) *Recognizer {
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}
	return &Recognizer{keywords: keywords}
}

// Recognize returns the symbol of the first keyword found in text.
// Matching is case-insensitive substring matching.
func (r *Recognizer) Recognize(text string) (model.Symbol, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t != "" {
		for _, k := range r.keywords {
			if strings.Contains(t, strings.ToLower(k.Word)) {
				return k.Symbol, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotUnderstood, text)
}

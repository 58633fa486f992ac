package simulate

import (
	"fmt"
	"strings"

	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/types"
)

// Counts indexes a leaderboard by symbol.
func Counts(board []types.LeaderboardEntry) map[model.Symbol]int64 {
	out := make(map[model.Symbol]int64, len(board))
	for _, e := range board {
		out[model.Symbol(e.Symbol)] = int64(e.Count) //nolint:gosec // counts stay far below MaxInt64
	}
	return out
}

// Verify checks that every symbol grew by exactly what was emitted between
// the before and after leaderboards.
func Verify(before, after []types.LeaderboardEntry, emitted map[model.Symbol]int64) error {
	b, a := Counts(before), Counts(after)

	var diffs []string
	for _, s := range model.Alphabet() {
		if got, want := a[s]-b[s], emitted[s]; got != want {
			diffs = append(diffs, fmt.Sprintf("%s: got +%d want +%d", s.Name(), got, want))
		}
	}
	if len(diffs) > 0 {
		return fmt.Errorf("%w: %s", ErrMismatch, strings.Join(diffs, ", "))
	}
	return nil
}

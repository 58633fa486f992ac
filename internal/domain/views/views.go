// Package views derives the read-only presentation views from the merged model.
// Every function here is pure: it copies its inputs and never mutates them.
package views

import (
	"sort"
	"time"

	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/internal/domain/types"
)

// View caps.
const (
	FeedDisplayCap  = 50
	FeedBufferCap   = 100
	RecentBlocksCap = 6
	HeatmapCap      = 20
	UserHistoryCap  = 20
)

// NoMood is shown when the current position has no known mood.
const NoMood = "—"

// Leaderboard ranks every symbol of the alphabet by count, ties in alphabet order.
func Leaderboard(counts map[model.Symbol]uint64) []types.LeaderboardEntry {
	alphabet := model.Alphabet()
	out := make([]types.LeaderboardEntry, 0, len(alphabet))
	for _, s := range alphabet {
		out = append(out, types.LeaderboardEntry{Symbol: string(s), Name: s.Name(), Count: counts[s]})
	}
	// Stable sort keeps alphabet order among equal counts.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Lookup resolves the mood of a position.
type Lookup func(position uint64) (model.Symbol, bool)

// CurrentMood returns the mood of position, or NoMood when no record for it
// has been merged. Position 0 is a valid position like any other.
func CurrentMood(lookup Lookup, position uint64) string {
	if lookup == nil {
		return NoMood
	}
	if s, ok := lookup(position); ok {
		return string(s)
	}
	return NoMood
}

// Blocks sorts a copy of entries by position desc and truncates it to limit.
func Blocks(entries []types.BlockMood, limit int) []types.BlockMood {
	out := make([]types.BlockMood, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position > out[j].Position })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Feed truncates a newest-first feed to limit, clamped to FeedDisplayCap.
func Feed(items []types.FeedItem, limit int) []types.FeedItem {
	if limit <= 0 || limit > FeedDisplayCap {
		limit = FeedDisplayCap
	}
	n := min(limit, len(items))
	out := make([]types.FeedItem, n)
	copy(out, items[:n])
	return out
}

// UserHistory keeps the last UserHistoryCap records in arrival order and
// returns them most recent first.
func UserHistory(records []model.Record) []types.HistoryItem {
	if len(records) > UserHistoryCap {
		records = records[len(records)-UserHistoryCap:]
	}
	out := make([]types.HistoryItem, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, types.HistoryItem{Position: records[i].Position, Symbol: string(records[i].Symbol)})
	}
	return out
}

// Input is everything Build needs from the model.
type Input struct {
	Version     uint64
	Counts      map[model.Symbol]uint64
	Blocks      []types.BlockMood
	Feed        []types.FeedItem
	Position    uint64
	Lookup      Lookup
	Top         model.Symbol
	Identity    string
	UserHistory []model.Record
	TotalMerged uint64
	Positions   int
	Now         time.Time
}

// Build composes every view into an immutable snapshot.
func Build(in Input) types.Snapshot {
	heat := Blocks(in.Blocks, HeatmapCap)
	recent := make([]types.BlockMood, min(RecentBlocksCap, len(heat)))
	copy(recent, heat)

	var history []types.HistoryItem
	if in.Identity != "" {
		history = UserHistory(in.UserHistory)
	}

	return types.Snapshot{
		Version:         in.Version,
		Leaderboard:     Leaderboard(in.Counts),
		RecentBlocks:    recent,
		Heatmap:         heat,
		Feed:            Feed(in.Feed, FeedDisplayCap),
		CurrentPosition: in.Position,
		CurrentMood:     CurrentMood(in.Lookup, in.Position),
		TopSymbol:       string(in.Top),
		Identity:        in.Identity,
		UserHistory:     history,
		TotalMerged:     in.TotalMerged,
		Positions:       in.Positions,
		UpdatedAt:       in.Now,
	}
}

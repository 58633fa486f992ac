// Package types contains the view shapes shared by the engine and the API.
package types

import "time"

// LeaderboardEntry is one symbol's tally.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Count  uint64 `json:"count"`
}

// BlockMood is the displayed mood of one position.
type BlockMood struct {
	Position uint64 `json:"position"`
	Symbol   string `json:"symbol"`
}

// FeedItem is one merged record as shown in the live feed.
type FeedItem struct {
	Actor    string `json:"actor"`
	Position uint64 `json:"position"`
	Symbol   string `json:"symbol"`
	Source   string `json:"source"`
}

// HistoryItem is one record of a single actor's history.
type HistoryItem struct {
	Position uint64 `json:"position"`
	Symbol   string `json:"symbol"`
}

// Snapshot is an immutable, published copy of every derived view.
type Snapshot struct {
	Version         uint64             `json:"version"`
	Leaderboard     []LeaderboardEntry `json:"leaderboard"`
	RecentBlocks    []BlockMood        `json:"recent_blocks"`
	Heatmap         []BlockMood        `json:"heatmap"`
	Feed            []FeedItem         `json:"feed"`
	CurrentPosition uint64             `json:"current_position"`
	CurrentMood     string             `json:"current_mood"`
	TopSymbol       string             `json:"top_symbol,omitempty"`
	Identity        string             `json:"identity,omitempty"`
	UserHistory     []HistoryItem      `json:"user_history,omitempty"`
	TotalMerged     uint64             `json:"total_merged"`
	Positions       int                `json:"positions"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

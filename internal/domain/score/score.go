// Package score provides the committed score record and leaderboard entry types.
package score

import (
	"sort"
	"time"
)

// Record is one committed final score.
type Record struct {
	ID          string    // Commit ID (UUID), stable across retries
	SessionID   string    // Session generation that produced the score
	Identity    string    // Display name
	Score       int       // Final score
	CommittedAt time.Time // Time the session finished
}

// Entry is one leaderboard row.
type Entry struct {
	Identity    string
	Score       int
	CommittedAt time.Time
}

// Ranked is an entry with its arrival sequence, used to order ties.
type Ranked struct {
	Entry
	Seq int64
}

// Rank sorts by score descending, then by arrival sequence ascending,
// and returns at most n entries.
func Rank(rows []Ranked, n int) []Entry {
	if n <= 0 {
		return []Entry{}
	}

	sorted := make([]Ranked, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]Entry, len(sorted))
	for i, r := range sorted {
		out[i] = r.Entry
	}
	return out
}

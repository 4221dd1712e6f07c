package leaderboard

import (
	"context"

	"scoreboard/core"
)

// DefaultLimit is the number of entries served when the caller does not ask for a size.
const DefaultLimit = 10

// OrderedScoreSet is a ranked collection of player scores that only ever keeps each
// player's best result.
type OrderedScoreSet interface {
	// UpsertIfGreater inserts the entry when absent and replaces it only when score is
	// strictly greater than the stored value.
	UpsertIfGreater(ctx context.Context, player core.PlayerID, score float64) (core.UpdateOutcome, error)
	// TopK returns at most k entries ordered by score descending.
	TopK(ctx context.Context, k int) ([]core.ScoreEntry, error)
}

// Named is implemented by backends that can identify themselves in logs and metrics.
type Named interface {
	Name() string
}

// NameOf returns the backend name, or "unknown".
func NameOf(s OrderedScoreSet) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

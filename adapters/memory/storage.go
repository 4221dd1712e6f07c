package memory

import (
	"context"

	"scoreboard/core"
	"scoreboard/leaderboard"
)

// Store is a process-local leaderboard. Nothing survives a restart and nothing is shared
// with other processes; it exists so the service keeps answering when the primary store
// is gone. Capacity is unbounded.
type Store struct {
	list *leaderboard.SkipList
}

func New() *Store { return &Store{list: leaderboard.NewSkipList()} }

func (s *Store) Name() string { return "memory" }

func (s *Store) UpsertIfGreater(_ context.Context, player core.PlayerID, score float64) (core.UpdateOutcome, error) {
	p, err := core.ValidateEntry(player, score)
	if err != nil {
		return core.UpdateOutcome{}, err
	}
	return core.UpdateOutcome{Updated: s.list.UpdateIfGreater(p, score)}, nil
}

func (s *Store) TopK(_ context.Context, k int) ([]core.ScoreEntry, error) {
	return s.list.TopN(k), nil
}

// Len reports how many players are tracked.
func (s *Store) Len() int { return s.list.Len() }

var _ leaderboard.OrderedScoreSet = (*Store)(nil)

package engine

import (
	"scoreboard/failover"
	"scoreboard/leaderboard"
)

// Backends resolves the store that serves a single call. *failover.Controller implements it.
type Backends interface {
	ActiveBackend() leaderboard.OrderedScoreSet
	Health() failover.Health
}

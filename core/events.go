package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventScoreSubmitted  EventType = "score_submitted"
	EventBackendFailover EventType = "backend_failover"
)

// Event represents an immutable domain event.
type Event struct {
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"`
	Player  PlayerID  `json:"player,omitempty"`
	Score   float64   `json:"score,omitempty"`
	Updated bool      `json:"updated,omitempty"`
	Backend string    `json:"backend,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

func NewScoreSubmitted(player PlayerID, score float64, updated bool, backend string) Event {
	return Event{Type: EventScoreSubmitted, Time: time.Now().UTC(), Player: player, Score: score, Updated: updated, Backend: backend}
}

func NewBackendFailover(from, reason string) Event {
	return Event{Type: EventBackendFailover, Time: time.Now().UTC(), Backend: from, Reason: reason}
}

package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PlayerID uniquely identifies a player on the leaderboard.
type PlayerID string

// ScoreEntry is a single ranked row: one player and their best score.
type ScoreEntry struct {
	Player PlayerID `json:"player"`
	Score  float64  `json:"score"`
}

// UpdateOutcome reports whether an upsert changed the stored score.
type UpdateOutcome struct {
	Updated bool `json:"updated"`
}

// Error kinds shared by every backend. Wrap with %w and test with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrBackendConnectivity = errors.New("backend connectivity")
	ErrBackendOperation    = errors.New("backend operation failed")
)

// NormalizePlayerID trims surrounding whitespace and rejects empty identifiers.
// Case is preserved: "Alice" and "alice" are different players.
func NormalizePlayerID(id PlayerID) (PlayerID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", fmt.Errorf("%w: empty player id", ErrInvalidInput)
	}
	return PlayerID(s), nil
}

// ValidateScore accepts finite, non-negative scores.
func ValidateScore(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Errorf("%w: score must be a finite number", ErrInvalidInput)
	}
	if score < 0 {
		return fmt.Errorf("%w: score must not be negative", ErrInvalidInput)
	}
	return nil
}

// ParseScore coerces a textual score the way the game client may send it ("42", " 7.5 ").
func ParseScore(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: score %q is not a number", ErrInvalidInput, raw)
	}
	if err := ValidateScore(v); err != nil {
		return 0, err
	}
	return v, nil
}

// ValidateEntry normalizes the player and checks the score in one step.
func ValidateEntry(player PlayerID, score float64) (PlayerID, error) {
	normalized, err := NormalizePlayerID(player)
	if err != nil {
		return "", err
	}
	if err := ValidateScore(score); err != nil {
		return "", err
	}
	return normalized, nil
}

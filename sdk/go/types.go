package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Entry is one leaderboard row as served by GET /leaderboard.
type Entry struct {
	Player string  `json:"value"`
	Score  float64 `json:"score"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Mode    string `json:"mode"`
}

// Degraded reports whether the server runs on its in-memory fallback.
func (h HealthStatus) Degraded() bool { return h.Mode == "fallback-active" }

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed: status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("request failed: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed: status %d", e.StatusCode)
}

// InvalidInput reports whether the server rejected the request payload.
func (e *APIError) InvalidInput() bool {
	return e.StatusCode == http.StatusBadRequest
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyPlayer is returned when the player name is empty.
var ErrEmptyPlayer = errors.New("player is required")

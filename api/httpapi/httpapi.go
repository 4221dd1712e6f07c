package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scoreboard/core"
	"scoreboard/engine"
	"scoreboard/metrics"
)

const maxBodyBytes = 64 << 10

// Service is the leaderboard surface the API needs. *engine.LeaderboardService implements it.
type Service interface {
	SubmitScore(ctx context.Context, player core.PlayerID, score float64) (core.UpdateOutcome, error)
	TopScores(ctx context.Context, limit int) ([]core.ScoreEntry, error)
	Health(ctx context.Context) engine.HealthReport
}

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables CORS for the given origin (use "*" for any).
	AllowCORSOrigin string
	// StaticDir, if set, is served at the root so the game page and the API share an origin.
	StaticDir string
	// TrustProxyHeaders takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client address.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// RateLimitCleanup evicts idle client buckets after this long.
	RateLimitCleanup time.Duration
	// Metrics, if non-nil, records request metrics and serves MetricsPath.
	Metrics     *metrics.Manager
	MetricsPath string
	// Logger receives access and error logs (defaults to slog.Default()).
	Logger *slog.Logger
}

// NewMux builds an http.Handler exposing the leaderboard API.
// Routes:
//   - GET  {prefix}/leaderboard?limit=10
//   - POST {prefix}/score  {"player": "alice", "score": 42}
//   - GET  {prefix}/healthz
//   - GET  {metrics path}
//   - GET  /  static files when StaticDir is set
func NewMux(svc Service, opts Options) http.Handler {
	if svc == nil {
		panic("httpapi.NewMux requires a non-nil service")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{svc: svc, log: log}
	m := opts.Metrics

	mux := http.NewServeMux()
	mux.Handle("GET "+withPrefix(opts.PathPrefix, "/leaderboard"), withMetrics(m, "leaderboard", http.HandlerFunc(h.leaderboard)))
	mux.Handle("POST "+withPrefix(opts.PathPrefix, "/score"), withMetrics(m, "score", http.HandlerFunc(h.submitScore)))
	mux.Handle("GET "+withPrefix(opts.PathPrefix, "/healthz"), withMetrics(m, "healthz", http.HandlerFunc(h.health)))
	if m != nil && opts.MetricsPath != "" {
		mux.Handle("GET "+opts.MetricsPath, m.Handler())
	}
	if opts.StaticDir != "" {
		mux.Handle("GET /", withMetrics(m, "static", http.FileServer(http.Dir(opts.StaticDir))))
	}

	var handler http.Handler = mux
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, newRateLimiter(opts.RateLimitRPM, opts.RateLimitBurst, opts.RateLimitCleanup))
	}
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	handler = withAccessLog(handler, log)
	handler = withRequestID(handler)
	if opts.TrustProxyHeaders {
		handler = withProxyHeaders(handler)
	}
	return withRecovery(handler, log)
}

type handlers struct {
	svc Service
	log *slog.Logger
}

// leaderboardEntry is the wire shape the game client renders.
type leaderboardEntry struct {
	Value string  `json:"value"`
	Score float64 `json:"score"`
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "limit must be an integer")
			return
		}
		limit = n
	}

	entries, err := h.svc.TopScores(r.Context(), limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "error fetching leaderboard", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "", "Failed to fetch leaderboard")
		return
	}

	out := make([]leaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, leaderboardEntry{Value: string(e.Player), Score: e.Score})
	}
	writeJSON(w, http.StatusOK, out)
}

type scoreRequest struct {
	Player *string         `json:"player"`
	Score  json.RawMessage `json:"score"`
}

// parse accepts the score as a JSON number or a numeric string.
func (req scoreRequest) parse() (core.PlayerID, float64, error) {
	if req.Player == nil {
		return "", 0, fmt.Errorf("%w: player is required", core.ErrInvalidInput)
	}
	raw := bytes.TrimSpace(req.Score)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", 0, fmt.Errorf("%w: score is required", core.ErrInvalidInput)
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", 0, fmt.Errorf("%w: score is not a string or number", core.ErrInvalidInput)
		}
	} else {
		text = string(raw)
	}
	score, err := core.ParseScore(text)
	if err != nil {
		return "", 0, err
	}
	return core.PlayerID(*req.Player), score, nil
}

type scoreResponse struct {
	Success bool `json:"success"`
	Updated bool `json:"updated"`
}

func (h *handlers) submitScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		msg := "request body must be a JSON object"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		} else if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, "malformed_body", msg)
		return
	}

	player, score, err := req.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	out, err := h.svc.SubmitScore(r.Context(), player, score)
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	case err != nil:
		h.log.ErrorContext(r.Context(), "error saving score", "error", err, "player", player, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "", "Failed to save score")
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Success: true, Updated: out.Updated})
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Mode    string `json:"mode"`
}

// health always answers 200: the fallback keeps the service usable even without the primary.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	report := h.svc.Health(r.Context())
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Backend: report.Backend, Mode: string(report.Mode)})
}

// Helpers

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	return strings.TrimSuffix(prefix, "/") + path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Error: msg, Code: code})
}

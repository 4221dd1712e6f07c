package sdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mem "scoreboard/adapters/memory"
	"scoreboard/api/httpapi"
	"scoreboard/engine"
	"scoreboard/failover"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := engine.NewLeaderboardService(failover.New(nil, mem.New()), engine.NewEventBus(engine.DispatchSync))
	handler := httpapi.NewMux(svc, httpapi.Options{
		PathPrefix: "/api",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		svc.Close()
	})
	return srv
}

func TestClient_SubmitLeaderboardHealth(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(srv.URL+"/api/", WithHeader("X-Request-ID", "sdk-test"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	updated, err := client.SubmitScore(ctx, "alice", 10)
	if err != nil || !updated {
		t.Fatalf("first submit updated=%v err=%v", updated, err)
	}
	updated, err = client.SubmitScore(ctx, "alice", 5)
	if err != nil || updated {
		t.Fatalf("lower submit updated=%v err=%v", updated, err)
	}
	if _, err := client.SubmitScore(ctx, "bob", 20); err != nil {
		t.Fatalf("submit bob: %v", err)
	}

	entries, err := client.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []Entry{{Player: "bob", Score: 20}, {Player: "alice", Score: 10}}
	if len(entries) != len(want) || entries[0] != want[0] || entries[1] != want[1] {
		t.Fatalf("unexpected leaderboard: %+v", entries)
	}

	entries, err = client.Leaderboard(ctx, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("limited leaderboard: %+v err=%v", entries, err)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" || !health.Degraded() || health.Backend != "memory" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_Errors(t *testing.T) {
	srv := newTestServer(t)
	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, err := client.SubmitScore(ctx, " ", 1); !errors.Is(err, ErrEmptyPlayer) {
		t.Fatalf("expected ErrEmptyPlayer, got %v", err)
	}

	_, err = client.SubmitScore(ctx, "alice", -1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.InvalidInput() || apiErr.Code != "invalid_input" || apiErr.Message == "" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to fetch leaderboard"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL)
	_, err := client.Leaderboard(context.Background(), 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError || apiErr.Message != "Failed to fetch leaderboard" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_PollLeaderboard(t *testing.T) {
	srv := newTestServer(t)
	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.SubmitScore(ctx, "alice", 3); err != nil {
		t.Fatalf("submit: %v", err)
	}

	snapshots := client.PollLeaderboard(ctx, 10*time.Millisecond, 10)
	select {
	case entries := <-snapshots:
		if len(entries) != 1 || entries[0].Player != "alice" {
			t.Fatalf("unexpected snapshot: %+v", entries)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for snapshot")
	}

	cancel()
	for range snapshots {
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
